package lending

import (
	"lendcore/core/events"
	"lendcore/core/types"
)

// EffectKind names a token movement the host must settle after commit.
type EffectKind string

const (
	// EffectTransferIn pulls tokens the sender deposited into the vault.
	EffectTransferIn EffectKind = "transfer_in"
	// EffectTransferOut pays tokens out of the vault.
	EffectTransferOut EffectKind = "transfer_out"
	// EffectTransfer sends tokens held directly by the lending account.
	EffectTransfer EffectKind = "transfer"
	// EffectIssue mints share tokens.
	EffectIssue EffectKind = "issue"
	// EffectCreateDenom registers a share token with its max supply.
	EffectCreateDenom EffectKind = "create_denom"
)

// Effect is one token movement intent.
type Effect struct {
	Kind     EffectKind           `json:"kind"`
	Account  string               `json:"account,omitempty"`
	Token    types.ExtendedSymbol `json:"token"`
	Quantity types.Asset          `json:"quantity"`
	Memo     string               `json:"memo,omitempty"`
}

// Result carries everything a committed operation produced.
type Result struct {
	Effects []Effect       `json:"effects"`
	Events  []events.Event `json:"-"`
}

func (t *tx) effect(kind EffectKind, account string, token types.ExtendedSymbol, q types.Asset, memo string) {
	t.result.Effects = append(t.result.Effects, Effect{Kind: kind, Account: account, Token: token, Quantity: q, Memo: memo})
}

func (t *tx) transferIn(from string, token types.ExtendedSymbol, q types.Asset, memo string) {
	t.effect(EffectTransferIn, from, token, q, memo)
}

func (t *tx) transferOut(to string, token types.ExtendedSymbol, q types.Asset, memo string) {
	t.effect(EffectTransferOut, to, token, q, memo)
}

func (t *tx) transfer(to string, token types.ExtendedSymbol, q types.Asset, memo string) {
	t.effect(EffectTransfer, to, token, q, memo)
}

func (t *tx) issue(to string, token types.ExtendedSymbol, q types.Asset, memo string) {
	t.effect(EffectIssue, to, token, q, memo)
}

func (t *tx) emit(e events.Event) {
	t.result.Events = append(t.result.Events, e)
}
