package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/services/lendingd/service"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{lending.ErrInvalidMemo, http.StatusBadRequest},
		{fmt.Errorf("borrow: %w", lending.ErrInvalidBorrowType), http.StatusBadRequest},
		{lending.ErrPoolNotFound, http.StatusNotFound},
		{fmt.Errorf("settle eos: %w", lending.ErrPoolNotFound), http.StatusNotFound},
		{lending.ErrExceedsWithdrawable, http.StatusConflict},
		{lending.ErrNothingChanged, http.StatusConflict},
		{lending.ErrFeatureClosed, http.StatusForbidden},
		{nativecommon.ErrModulePaused, http.StatusForbidden},
		{lending.ErrDefendCheck, http.StatusUnprocessableEntity},
		{nativecommon.ErrQuotaRequestsExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("%w: disk full", service.ErrPersist), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), "error %v", tc.err)
	}
}
