// Package report renders a lending store snapshot as CSV and Parquet tables
// for risk review.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"lendcore/native/lending"
)

type PoolRow struct {
	Name         string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Anchor       string  `parquet:"name=anchor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Share        string  `parquet:"name=share, type=BYTE_ARRAY, convertedtype=UTF8"`
	Available    float64 `parquet:"name=available, type=DOUBLE"`
	Borrowed     float64 `parquet:"name=borrowed, type=DOUBLE"`
	Stable       float64 `parquet:"name=stable, type=DOUBLE"`
	ShareSupply  float64 `parquet:"name=share_supply, type=DOUBLE"`
	UsageRate    string  `parquet:"name=usage_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	FloatingRate string  `parquet:"name=floating_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        string  `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	SharePrice   float64 `parquet:"name=share_price, type=DOUBLE"`
	BadDebt      float64 `parquet:"name=bad_debt, type=DOUBLE"`
	UpdatedAt    string  `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type LoanRow struct {
	ID        int64   `parquet:"name=id, type=INT64"`
	Account   string  `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pool      string  `parquet:"name=pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type      string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Principal float64 `parquet:"name=principal, type=DOUBLE"`
	Quantity  float64 `parquet:"name=quantity, type=DOUBLE"`
	FixedRate string  `parquet:"name=fixed_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	UpdatedAt string  `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type HealthRow struct {
	Account         string  `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	LoanValue       float64 `parquet:"name=loan_value, type=DOUBLE"`
	CollateralValue float64 `parquet:"name=collateral_value, type=DOUBLE"`
	Factor          float64 `parquet:"name=factor, type=DOUBLE"`
	AtRisk          bool    `parquet:"name=at_risk, type=BOOLEAN"`
	UpdatedAt       string  `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Report is the tabular view of one snapshot.
type Report struct {
	Pools  []PoolRow
	Loans  []LoanRow
	Health []HealthRow
}

// AtRiskFactor flags health records at or below this factor.
const AtRiskFactor = 1.25

// Build flattens snap into report rows. Health rows are ordered by factor,
// weakest first.
func Build(snap *lending.Snapshot) *Report {
	r := &Report{}
	if snap == nil {
		return r
	}
	bad := make(map[string]float64, len(snap.BadDebts))
	for _, d := range snap.BadDebts {
		bad[d.Pool] = d.Quantity.Quantity.Float()
	}
	for _, p := range snap.Pools {
		r.Pools = append(r.Pools, PoolRow{
			Name:         p.Name,
			Anchor:       p.Anchor.String(),
			Share:        p.Share.String(),
			Available:    p.AvailableDeposit.Float(),
			Borrowed:     p.Borrow.Float(),
			Stable:       p.StableBorrow.Float(),
			ShareSupply:  p.ShareSupply.Float(),
			UsageRate:    p.UsageRate.String(),
			FloatingRate: p.FloatingRate.String(),
			Price:        p.Price.String(),
			SharePrice:   p.SharePrice,
			BadDebt:      bad[p.Name],
			UpdatedAt:    formatTime(p.UpdatedAt),
		})
	}
	for _, l := range snap.Loans {
		r.Loans = append(r.Loans, LoanRow{
			ID:        int64(l.ID),
			Account:   l.Account,
			Pool:      l.Pool,
			Type:      l.Type.String(),
			Principal: l.Principal.Float(),
			Quantity:  l.ActualQuantity().Float(),
			FixedRate: l.FixedRate.String(),
			UpdatedAt: formatTime(l.UpdatedAt),
		})
	}
	for _, h := range snap.Health {
		r.Health = append(r.Health, HealthRow{
			Account:         h.Account,
			LoanValue:       h.LoanValue,
			CollateralValue: h.CollateralValue,
			Factor:          h.Factor,
			AtRisk:          h.Factor <= AtRiskFactor,
			UpdatedAt:       formatTime(h.UpdatedAt),
		})
	}
	sort.SliceStable(r.Health, func(i, j int) bool { return r.Health[i].Factor < r.Health[j].Factor })
	return r
}

// Write stores every table as <name>_<stamp>.csv and .parquet under dir and
// returns the written paths.
func (r *Report) Write(dir string, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create dir: %w", err)
	}
	stamp := now.UTC().Format("20060102T150405Z")
	var paths []string
	add := func(written []string, err error) error {
		paths = append(paths, written...)
		return err
	}

	poolRecords := make([][]string, 0, len(r.Pools))
	for _, p := range r.Pools {
		poolRecords = append(poolRecords, []string{
			p.Name, p.Anchor, p.Share, ftoa(p.Available), ftoa(p.Borrowed), ftoa(p.Stable), ftoa(p.ShareSupply),
			p.UsageRate, p.FloatingRate, p.Price, ftoa(p.SharePrice), ftoa(p.BadDebt), p.UpdatedAt,
		})
	}
	if err := add(writeTable(dir, "pools_"+stamp, []string{
		"name", "anchor", "share", "available", "borrowed", "stable", "share_supply",
		"usage_rate", "floating_rate", "price", "share_price", "bad_debt", "updated_at",
	}, poolRecords, r.Pools)); err != nil {
		return paths, err
	}

	loanRecords := make([][]string, 0, len(r.Loans))
	for _, l := range r.Loans {
		loanRecords = append(loanRecords, []string{
			strconv.FormatInt(l.ID, 10), l.Account, l.Pool, l.Type, ftoa(l.Principal), ftoa(l.Quantity), l.FixedRate, l.UpdatedAt,
		})
	}
	if err := add(writeTable(dir, "loans_"+stamp, []string{
		"id", "account", "pool", "type", "principal", "quantity", "fixed_rate", "updated_at",
	}, loanRecords, r.Loans)); err != nil {
		return paths, err
	}

	healthRecords := make([][]string, 0, len(r.Health))
	for _, h := range r.Health {
		healthRecords = append(healthRecords, []string{
			h.Account, ftoa(h.LoanValue), ftoa(h.CollateralValue), ftoa(h.Factor), strconv.FormatBool(h.AtRisk), h.UpdatedAt,
		})
	}
	if err := add(writeTable(dir, "health_"+stamp, []string{
		"account", "loan_value", "collateral_value", "factor", "at_risk", "updated_at",
	}, healthRecords, r.Health)); err != nil {
		return paths, err
	}
	return paths, nil
}

func writeTable[T any](dir, name string, header []string, records [][]string, rows []T) ([]string, error) {
	csvPath := filepath.Join(dir, name+".csv")
	if err := writeCSV(csvPath, header, records); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(dir, name+".parquet")
	if err := writeParquet(parquetPath, rows); err != nil {
		return []string{csvPath}, err
	}
	return []string{csvPath, parquetPath}, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("report: write csv rows: %w", err)
	}
	return nil
}

func writeParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("report: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("report: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("report: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("report: close parquet file: %w", err)
	}
	return nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
