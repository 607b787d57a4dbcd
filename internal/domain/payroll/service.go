package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cryptoutil "salaryrules/internal/platform/crypto"
	"salaryrules/internal/platform/metrics"
)

const (
	DefaultBatchWorkers = 4
	MaxBatchSize        = 1000
)

// Settings tune a Service. Zero values fall back to defaults.
type Settings struct {
	Rounding     Rounding
	BatchWorkers int
	Metrics      *metrics.Collector
}

type Service struct {
	store    StoreAPI
	crypto   *cryptoutil.Service
	rounding Rounding
	workers  int
	metrics  *metrics.Collector
}

func NewService(store StoreAPI, crypto *cryptoutil.Service, settings Settings) *Service {
	workers := settings.BatchWorkers
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	return &Service{
		store:    store,
		crypto:   crypto,
		rounding: settings.Rounding,
		workers:  workers,
		metrics:  settings.Metrics,
	}
}

// CreateStructure validates a rule set, including every expression, and
// stores it.
func (s *Service) CreateStructure(ctx context.Context, tenantID string, structure Structure) (string, error) {
	structure.Code = strings.TrimSpace(structure.Code)
	structure.Name = strings.TrimSpace(structure.Name)
	if structure.Code == "" {
		return "", &CatalogError{Reason: "structure code is required"}
	}
	if structure.Name == "" {
		structure.Name = structure.Code
	}
	if len(structure.Rules) == 0 {
		return "", &CatalogError{Code: structure.Code, Reason: "structure has no rules"}
	}
	catalog, err := BuildCatalog(structure.Rules, structure.Categories...)
	if err != nil {
		return "", err
	}
	if err := catalog.Check(); err != nil {
		return "", err
	}
	return s.store.CreateStructure(ctx, tenantID, structure)
}

func (s *Service) ListStructures(ctx context.Context, tenantID string) ([]StructureSummary, error) {
	return s.store.ListStructures(ctx, tenantID)
}

func (s *Service) GetStructure(ctx context.Context, tenantID, structureID string) (Structure, error) {
	return s.store.GetStructure(ctx, tenantID, structureID)
}

func (s *Service) catalog(ctx context.Context, tenantID, structureID string) (*Catalog, error) {
	structure, err := s.store.GetStructure(ctx, tenantID, structureID)
	if err != nil {
		return nil, err
	}
	return BuildCatalog(structure.Rules, structure.Categories...)
}

// Compute runs a stored structure against input without storing anything.
func (s *Service) Compute(ctx context.Context, tenantID, structureID string, input PayslipInput) (Result, error) {
	catalog, err := s.catalog(ctx, tenantID, structureID)
	if err != nil {
		return Result{}, err
	}
	return s.compute(catalog, input)
}

// ComputeAdhoc runs rules sent by the caller.
func (s *Service) ComputeAdhoc(rules []SalaryRule, categories []Category, input PayslipInput) (Result, error) {
	catalog, err := BuildCatalog(rules, categories...)
	if err != nil {
		return Result{}, err
	}
	return s.compute(catalog, input)
}

func (s *Service) compute(catalog *Catalog, input PayslipInput) (Result, error) {
	start := time.Now()
	result, err := Compute(catalog, input, s.rounding)
	s.metrics.RecordCompute(len(result.Lines), time.Since(start), err)
	return result, err
}

// RunPayslip computes a payslip and stores it with a sealed copy of its
// input.
func (s *Service) RunPayslip(ctx context.Context, tenantID, structureID string, input PayslipInput) (Payslip, error) {
	catalog, err := s.catalog(ctx, tenantID, structureID)
	if err != nil {
		return Payslip{}, err
	}
	return s.runPayslip(ctx, tenantID, structureID, catalog, input)
}

func (s *Service) runPayslip(ctx context.Context, tenantID, structureID string, catalog *Catalog, input PayslipInput) (Payslip, error) {
	result, err := s.compute(catalog, input)
	if err != nil {
		return Payslip{}, err
	}
	ref, name := employeeIdentity(input.Employee)
	payslip := Payslip{
		StructureID:  structureID,
		EmployeeRef:  ref,
		EmployeeName: name,
		DateFrom:     input.Payroll.DateFrom,
		DateTo:       input.Payroll.DateTo,
		Currency:     input.Payroll.Currency,
		Summary:      Summarize(result.Lines),
		Lines:        result.Lines,
		Environment:  &result.Environment,
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return Payslip{}, err
	}
	sealed, err := s.crypto.Encrypt(raw)
	if err != nil {
		return Payslip{}, fmt.Errorf("seal payslip input: %w", err)
	}
	id, err := s.store.CreatePayslip(ctx, tenantID, payslip, sealed)
	if err != nil {
		return Payslip{}, err
	}
	payslip.ID = id
	return payslip, nil
}

// RunBatch runs independent payslips on a bounded worker pool. A failing
// payslip is reported in its item and does not stop the others.
func (s *Service) RunBatch(ctx context.Context, tenantID, structureID string, inputs []PayslipInput) ([]BatchItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: batch has no payslips", ErrInvalidInput)
	}
	if len(inputs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch exceeds %d payslips", ErrInvalidInput, MaxBatchSize)
	}
	catalog, err := s.catalog(ctx, tenantID, structureID)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range inputs {
		i := i
		g.Go(func() error {
			item := BatchItem{Index: i}
			if err := ctx.Err(); err != nil {
				item.Error, item.ErrorCode = err.Error(), "canceled"
				items[i] = item
				return nil
			}
			payslip, err := s.runPayslip(ctx, tenantID, structureID, catalog, inputs[i])
			if err != nil {
				item.Error, item.ErrorCode = err.Error(), ErrorCode(err)
				slog.Warn("batch payslip failed", "structure", structureID, "index", i, "err", err)
			} else {
				item.PayslipID = payslip.ID
				summary := payslip.Summary
				item.Summary = &summary
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

func (s *Service) GetPayslip(ctx context.Context, tenantID, payslipID string) (Payslip, error) {
	return s.store.GetPayslip(ctx, tenantID, payslipID)
}

// PayslipInput returns the input a stored payslip was computed from.
func (s *Service) PayslipInput(ctx context.Context, tenantID, payslipID string) (PayslipInput, error) {
	sealed, err := s.store.PayslipInput(ctx, tenantID, payslipID)
	if err != nil {
		return PayslipInput{}, err
	}
	raw, err := s.crypto.Decrypt(sealed)
	if err != nil {
		return PayslipInput{}, fmt.Errorf("open payslip input: %w", err)
	}
	var input PayslipInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return PayslipInput{}, fmt.Errorf("decode payslip input: %w", err)
	}
	return input, nil
}

func (s *Service) ListPayslips(ctx context.Context, tenantID, structureID string, limit, offset int) ([]Payslip, int, error) {
	total, err := s.store.CountPayslips(ctx, tenantID, structureID)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.store.ListPayslips(ctx, tenantID, structureID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// employeeIdentity picks a reference and a display name from an employee
// record.
func employeeIdentity(rec Record) (string, string) {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := rec[k]; ok && v != nil {
				if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
					return s
				}
			}
		}
		return ""
	}
	return pick("id", "code", "ref", "employee_id"), pick("name", "full_name")
}
