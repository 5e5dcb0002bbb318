package recon

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"otcpool/core/state"
	"otcpool/native/otc"
	"otcpool/services/otcd/api"
)

// Anomaly types emitted by the reconciler.
const (
	// AnomalyEscrowMismatch flags a live offer whose escrow balance differs
	// from its remaining amount A.
	AnomalyEscrowMismatch = "escrow_mismatch"
	// AnomalyStrandedEscrow flags a closed offer whose escrow still holds funds.
	AnomalyStrandedEscrow = "stranded_escrow"
	// AnomalyExpiredOpen flags a live offer past its expiration that nobody closed.
	AnomalyExpiredOpen = "expired_open"
	// AnomalyOrphanEscrow flags a funded escrow account with no offer record.
	AnomalyOrphanEscrow = "orphan_escrow"
)

// AlertFunc is invoked for every anomaly detected during reconciliation.
type AlertFunc func(ctx context.Context, anomaly Anomaly) error

// Config captures the dependencies required to construct a Reconciler.
type Config struct {
	Store     *state.Store
	OutputDir string
	DryRun    bool
	Now       func() time.Time
	Alert     AlertFunc
	Logger    *slog.Logger
}

// RunOptions specifies overrides for a single run.
type RunOptions struct {
	DryRun bool
}

// Reconciler compares every offer record with the ledger balance of its escrow.
type Reconciler struct {
	store     *state.Store
	outputDir string
	dryRun    bool
	now       func() time.Time
	alert     AlertFunc
	logger    *slog.Logger
}

// Anomaly captures a reconciliation failure requiring operator review.
type Anomaly struct {
	Type     string
	OfferID  string
	Maker    otc.Address
	Escrow   otc.Address
	Mint     otc.Address
	Expected uint64
	Actual   uint64
	Details  string
}

// ReportRow summarises one offer slot.
type ReportRow struct {
	OfferID         string
	Maker           otc.Address
	Escrow          otc.Address
	MintA           otc.Address
	MintB           otc.Address
	OriginalAmountA uint64
	OriginalAmountB uint64
	AmountA         uint64
	AmountB         uint64
	EscrowBalance   uint64
	ExpirationTs    int64
	CreatedAt       int64
	Status          string
	EscrowMismatch  bool
	Stranded        bool
	ExpiredOpen     bool
}

// Result summarises a reconciliation run.
type Result struct {
	GeneratedAt time.Time
	Rows        []*ReportRow
	Anomalies   []Anomaly
	CSVPath     string
	ParquetPath string
}

// NewReconciler builds a configured reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("recon: store is required")
	}
	outputDir := cfg.OutputDir
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join("otcd-data", "recon")
	}
	alert := cfg.Alert
	if alert == nil {
		alert = func(ctx context.Context, anomaly Anomaly) error {
			return nil
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		store:     cfg.Store,
		outputDir: outputDir,
		dryRun:    cfg.DryRun,
		now:       nowFn,
		alert:     alert,
		logger:    logger,
	}, nil
}

// Run snapshots pool state and writes the report unless running dry.
func (r *Reconciler) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	generatedAt := r.now().UTC()
	result := &Result{GeneratedAt: generatedAt}
	err := r.store.View(func(tx *state.Tx) error {
		escrows := make(map[otc.Address]struct{})
		if err := tx.Offers(func(offer *otc.Offer) bool {
			if ctx.Err() != nil {
				return false
			}
			escrows[offer.Escrow] = struct{}{}
			balance, err := tx.Balance(offer.EscrowAccount())
			if err != nil {
				r.logger.Error("recon: escrow balance lookup failed", "offer_id", hex.EncodeToString(offer.ID[:]), "error", err)
				return true
			}
			row, anomalies := inspectOffer(offer, balance, generatedAt.Unix())
			result.Rows = append(result.Rows, row)
			result.Anomalies = append(result.Anomalies, anomalies...)
			return true
		}); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Balances(func(acct otc.Account, amount uint64) bool {
			if amount == 0 {
				return true
			}
			if _, known := escrows[acct.Owner]; known {
				return true
			}
			registered, err := tx.IsEscrow(acct.Owner)
			if err != nil || !registered {
				return true
			}
			result.Anomalies = append(result.Anomalies, Anomaly{
				Type:    AnomalyOrphanEscrow,
				Escrow:  acct.Owner,
				Mint:    acct.Mint,
				Actual:  amount,
				Details: "escrow account holds funds without an offer record",
			})
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("recon: scan state: %w", err)
	}
	sort.SliceStable(result.Anomalies, func(i, j int) bool {
		if result.Anomalies[i].Type != result.Anomalies[j].Type {
			return result.Anomalies[i].Type < result.Anomalies[j].Type
		}
		return result.Anomalies[i].OfferID < result.Anomalies[j].OfferID
	})

	for _, anomaly := range result.Anomalies {
		r.logger.Warn("recon: anomaly detected",
			"type", anomaly.Type,
			"offer_id", anomaly.OfferID,
			"escrow", api.FormatIdentity(anomaly.Escrow),
			"expected", anomaly.Expected,
			"actual", anomaly.Actual)
		if err := r.alert(ctx, anomaly); err != nil {
			r.logger.Error("recon: alert failed", "type", anomaly.Type, "error", err)
		}
	}

	if r.dryRun || opts.DryRun {
		return result, nil
	}
	runDir := filepath.Join(r.outputDir, generatedAt.Format("2006-01-02"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("recon: create output dir: %w", err)
	}
	base := "otc-recon-" + generatedAt.Format("20060102T150405Z")
	result.CSVPath = filepath.Join(runDir, base+".csv")
	if err := writeCSV(result.CSVPath, result.Rows); err != nil {
		return nil, err
	}
	result.ParquetPath = filepath.Join(runDir, base+".parquet")
	if err := writeParquet(result.ParquetPath, result.Rows); err != nil {
		return nil, err
	}
	r.logger.Info("recon: wrote report", "rows", len(result.Rows), "anomalies", len(result.Anomalies), "csv", result.CSVPath)
	return result, nil
}

func inspectOffer(offer *otc.Offer, escrowBalance uint64, now int64) (*ReportRow, []Anomaly) {
	row := &ReportRow{
		OfferID:         hex.EncodeToString(offer.ID[:]),
		Maker:           offer.Maker,
		Escrow:          offer.Escrow,
		MintA:           offer.MintA,
		MintB:           offer.MintB,
		OriginalAmountA: offer.OriginalAmountA,
		OriginalAmountB: offer.OriginalAmountB,
		AmountA:         offer.AmountA,
		AmountB:         offer.AmountB,
		EscrowBalance:   escrowBalance,
		ExpirationTs:    offer.ExpirationTs,
		CreatedAt:       offer.CreatedAt,
		Status:          offerStatus(offer, now),
	}
	var anomalies []Anomaly
	base := Anomaly{OfferID: row.OfferID, Maker: offer.Maker, Escrow: offer.Escrow, Mint: offer.MintA, Actual: escrowBalance}
	if offer.Live() {
		if escrowBalance != offer.AmountA {
			row.EscrowMismatch = true
			a := base
			a.Type = AnomalyEscrowMismatch
			a.Expected = offer.AmountA
			a.Details = "escrow balance differs from remaining amount"
			anomalies = append(anomalies, a)
		}
		if now > offer.ExpirationTs {
			row.ExpiredOpen = true
			a := base
			a.Type = AnomalyExpiredOpen
			a.Expected = offer.AmountA
			a.Details = "offer expired but was never closed"
			anomalies = append(anomalies, a)
		}
	} else if escrowBalance > 0 {
		row.Stranded = true
		a := base
		a.Type = AnomalyStrandedEscrow
		a.Details = fmt.Sprintf("closed offer (%s) still holds escrow funds", offer.ClosedReason)
		anomalies = append(anomalies, a)
	}
	return row, anomalies
}

func offerStatus(offer *otc.Offer, now int64) string {
	if !offer.Live() {
		if offer.ClosedReason != otc.CloseReasonNone {
			return string(offer.ClosedReason)
		}
		return "closed"
	}
	if now > offer.ExpirationTs {
		return "expired_open"
	}
	if offer.AmountB < offer.OriginalAmountB {
		return "partially_filled"
	}
	return "open"
}

var reportHeader = []string{
	"offer_id", "maker", "escrow", "mint_a", "mint_b", "original_amount_a", "original_amount_b",
	"amount_a", "amount_b", "escrow_balance", "expiration_ts", "created_at", "status",
	"escrow_mismatch", "stranded", "expired_open",
}

func writeCSV(path string, rows []*ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(reportHeader); err != nil {
		return fmt.Errorf("recon: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.OfferID,
			api.FormatIdentity(row.Maker),
			api.FormatIdentity(row.Escrow),
			api.FormatMint(row.MintA),
			api.FormatMint(row.MintB),
			strconv.FormatUint(row.OriginalAmountA, 10),
			strconv.FormatUint(row.OriginalAmountB, 10),
			strconv.FormatUint(row.AmountA, 10),
			strconv.FormatUint(row.AmountB, 10),
			strconv.FormatUint(row.EscrowBalance, 10),
			strconv.FormatInt(row.ExpirationTs, 10),
			strconv.FormatInt(row.CreatedAt, 10),
			row.Status,
			strconv.FormatBool(row.EscrowMismatch),
			strconv.FormatBool(row.Stranded),
			strconv.FormatBool(row.ExpiredOpen),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("recon: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("recon: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	OfferID         string `parquet:"name=offer_id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Maker           string `parquet:"name=maker, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Escrow          string `parquet:"name=escrow, type=UTF8, encoding=PLAIN_DICTIONARY"`
	MintA           string `parquet:"name=mint_a, type=UTF8, encoding=PLAIN_DICTIONARY"`
	MintB           string `parquet:"name=mint_b, type=UTF8, encoding=PLAIN_DICTIONARY"`
	OriginalAmountA int64  `parquet:"name=original_amount_a, type=INT64"`
	OriginalAmountB int64  `parquet:"name=original_amount_b, type=INT64"`
	AmountA         int64  `parquet:"name=amount_a, type=INT64"`
	AmountB         int64  `parquet:"name=amount_b, type=INT64"`
	EscrowBalance   int64  `parquet:"name=escrow_balance, type=INT64"`
	ExpirationTs    int64  `parquet:"name=expiration_ts, type=INT64"`
	CreatedAt       int64  `parquet:"name=created_at, type=INT64"`
	Status          string `parquet:"name=status, type=UTF8, encoding=PLAIN_DICTIONARY"`
	EscrowMismatch  bool   `parquet:"name=escrow_mismatch, type=BOOLEAN"`
	Stranded        bool   `parquet:"name=stranded, type=BOOLEAN"`
	ExpiredOpen     bool   `parquet:"name=expired_open, type=BOOLEAN"`
}

// Amounts are stored as INT64 (parquet has no unsigned physical type); values
// above MaxInt64 saturate.
func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}

func writeParquet(path string, rows []*ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			OfferID:         row.OfferID,
			Maker:           api.FormatIdentity(row.Maker),
			Escrow:          api.FormatIdentity(row.Escrow),
			MintA:           api.FormatMint(row.MintA),
			MintB:           api.FormatMint(row.MintB),
			OriginalAmountA: clampInt64(row.OriginalAmountA),
			OriginalAmountB: clampInt64(row.OriginalAmountB),
			AmountA:         clampInt64(row.AmountA),
			AmountB:         clampInt64(row.AmountB),
			EscrowBalance:   clampInt64(row.EscrowBalance),
			ExpirationTs:    row.ExpirationTs,
			CreatedAt:       row.CreatedAt,
			Status:          row.Status,
			EscrowMismatch:  row.EscrowMismatch,
			Stranded:        row.Stranded,
			ExpiredOpen:     row.ExpiredOpen,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("recon: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("recon: close parquet file: %w", err)
	}
	return nil
}
