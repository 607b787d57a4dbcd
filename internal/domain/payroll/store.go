package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextFormat = "22P02"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateStructure(ctx context.Context, tenantID string, structure Structure) (string, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
    INSERT INTO salary_structures (tenant_id, code, name)
    VALUES ($1,$2,$3)
    RETURNING id
  `, tenantID, structure.Code, structure.Name).Scan(&id)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrDuplicateCode, structure.Code)
		}
		return "", err
	}

	batch := &pgx.Batch{}
	for i, cat := range structure.Categories {
		batch.Queue(`
      INSERT INTO salary_rule_categories (structure_id, code, name, parent_code, position)
      VALUES ($1,$2,$3,$4,$5)
    `, id, cat.Code, cat.Name, nullIfEmpty(cat.ParentCode), i)
	}
	for i, rule := range structure.Rules {
		definition, err := json.Marshal(rule)
		if err != nil {
			return "", err
		}
		batch.Queue(`
      INSERT INTO salary_rules (structure_id, code, sequence, position, definition)
      VALUES ($1,$2,$3,$4,$5)
    `, id, rule.Code, rule.Sequence, i, definition)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListStructures(ctx context.Context, tenantID string) ([]StructureSummary, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT st.id, st.code, st.name, st.created_at,
           (SELECT COUNT(1) FROM salary_rules r WHERE r.structure_id = st.id)
    FROM salary_structures st
    WHERE st.tenant_id = $1
    ORDER BY st.code
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StructureSummary{}
	for rows.Next() {
		var item StructureSummary
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.CreatedAt, &item.RuleCount); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) GetStructure(ctx context.Context, tenantID, structureID string) (Structure, error) {
	var out Structure
	err := s.DB.QueryRow(ctx, `
    SELECT id, code, name, created_at
    FROM salary_structures
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, structureID).Scan(&out.ID, &out.Code, &out.Name, &out.CreatedAt)
	if err != nil {
		return Structure{}, notFound(err, ErrStructureNotFound)
	}

	catRows, err := s.DB.Query(ctx, `
    SELECT code, name, COALESCE(parent_code, '')
    FROM salary_rule_categories
    WHERE structure_id = $1
    ORDER BY position
  `, out.ID)
	if err != nil {
		return Structure{}, err
	}
	for catRows.Next() {
		var cat Category
		if err := catRows.Scan(&cat.Code, &cat.Name, &cat.ParentCode); err != nil {
			catRows.Close()
			return Structure{}, err
		}
		out.Categories = append(out.Categories, cat)
	}
	catRows.Close()

	ruleRows, err := s.DB.Query(ctx, `
    SELECT definition
    FROM salary_rules
    WHERE structure_id = $1
    ORDER BY position
  `, out.ID)
	if err != nil {
		return Structure{}, err
	}
	defer ruleRows.Close()
	for ruleRows.Next() {
		var definition []byte
		if err := ruleRows.Scan(&definition); err != nil {
			return Structure{}, err
		}
		var rule SalaryRule
		if err := json.Unmarshal(definition, &rule); err != nil {
			return Structure{}, fmt.Errorf("decode stored rule: %w", err)
		}
		out.Rules = append(out.Rules, rule)
	}
	return out, ruleRows.Err()
}

func (s *Store) CreatePayslip(ctx context.Context, tenantID string, payslip Payslip, sealedInput []byte) (string, error) {
	var environment []byte
	if payslip.Environment != nil {
		var err error
		if environment, err = json.Marshal(payslip.Environment); err != nil {
			return "", err
		}
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
    INSERT INTO payslips (tenant_id, structure_id, employee_ref, employee_name, date_from, date_to, currency,
                          gross, deductions, net, environment_json, input_enc)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11,$12)
    RETURNING id, created_at
  `, tenantID, payslip.StructureID, payslip.EmployeeRef, payslip.EmployeeName,
		nullIfEmpty(payslip.DateFrom), nullIfEmpty(payslip.DateTo), payslip.Currency,
		payslip.Summary.Gross.String(), payslip.Summary.Deductions.String(), payslip.Summary.Net.String(),
		environment, sealedInput).Scan(&id, &payslip.CreatedAt)
	if err != nil {
		return "", err
	}

	batch := &pgx.Batch{}
	for i, line := range payslip.Lines {
		batch.Queue(`
      INSERT INTO payslip_lines (payslip_id, position, rule_code, name, category_code, sequence,
                                 quantity, rate, amount, total)
      VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric)
    `, id, i, line.RuleCode, line.Name, line.CategoryCode, line.Sequence,
			line.Quantity.String(), line.Rate.String(), line.Amount.String(), line.Total.String())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

const payslipColumns = `
    id, structure_id, employee_ref, employee_name,
    COALESCE(to_char(date_from, 'YYYY-MM-DD'), ''), COALESCE(to_char(date_to, 'YYYY-MM-DD'), ''),
    currency, gross::text, deductions::text, net::text, created_at`

func scanPayslip(row pgx.Row, extra ...any) (Payslip, error) {
	var p Payslip
	var gross, deductions, net string
	dest := append([]any{&p.ID, &p.StructureID, &p.EmployeeRef, &p.EmployeeName, &p.DateFrom, &p.DateTo,
		&p.Currency, &gross, &deductions, &net, &p.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Payslip{}, err
	}
	var err error
	if p.Summary.Gross, err = decimal.NewFromString(gross); err != nil {
		return Payslip{}, err
	}
	if p.Summary.Deductions, err = decimal.NewFromString(deductions); err != nil {
		return Payslip{}, err
	}
	if p.Summary.Net, err = decimal.NewFromString(net); err != nil {
		return Payslip{}, err
	}
	return p, nil
}

func (s *Store) GetPayslip(ctx context.Context, tenantID, payslipID string) (Payslip, error) {
	var environment []byte
	p, err := scanPayslip(s.DB.QueryRow(ctx, `
    SELECT `+payslipColumns+`, environment_json
    FROM payslips
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, payslipID), &environment)
	if err != nil {
		return Payslip{}, notFound(err, ErrPayslipNotFound)
	}
	if len(environment) > 0 {
		var env Environment
		if err := json.Unmarshal(environment, &env); err != nil {
			return Payslip{}, fmt.Errorf("decode stored environment: %w", err)
		}
		p.Environment = &env
	}

	rows, err := s.DB.Query(ctx, `
    SELECT rule_code, name, category_code, sequence, quantity::text, rate::text, amount::text, total::text
    FROM payslip_lines
    WHERE payslip_id = $1
    ORDER BY position
  `, p.ID)
	if err != nil {
		return Payslip{}, err
	}
	defer rows.Close()
	p.Lines = []PayslipLine{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return Payslip{}, err
		}
		p.Lines = append(p.Lines, line)
	}
	return p, rows.Err()
}

func scanLine(row pgx.Row, extra ...any) (PayslipLine, error) {
	var line PayslipLine
	var quantity, rate, amount, total string
	dest := append(extra, &line.RuleCode, &line.Name, &line.CategoryCode, &line.Sequence, &quantity, &rate, &amount, &total)
	if err := row.Scan(dest...); err != nil {
		return PayslipLine{}, err
	}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{{quantity, &line.Quantity}, {rate, &line.Rate}, {amount, &line.Amount}, {total, &line.Total}} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return PayslipLine{}, err
		}
		*f.dst = d
	}
	line.AppearsOnPayslip = true
	return line, nil
}

func (s *Store) CountPayslips(ctx context.Context, tenantID, structureID string) (int, error) {
	var total int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM payslips
    WHERE tenant_id = $1 AND ($2 = '' OR structure_id::text = $2)
  `, tenantID, structureID).Scan(&total)
	return total, err
}

func (s *Store) ListPayslips(ctx context.Context, tenantID, structureID string, limit, offset int) ([]Payslip, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+payslipColumns+`
    FROM payslips
    WHERE tenant_id = $1 AND ($2 = '' OR structure_id::text = $2)
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, tenantID, structureID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Payslip{}
	for rows.Next() {
		p, err := scanPayslip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PayslipInput(ctx context.Context, tenantID, payslipID string) ([]byte, error) {
	var sealed []byte
	err := s.DB.QueryRow(ctx, `
    SELECT input_enc
    FROM payslips
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, payslipID).Scan(&sealed)
	if err != nil {
		return nil, notFound(err, ErrPayslipNotFound)
	}
	return sealed, nil
}

func (s *Store) RegisterRows(ctx context.Context, tenantID, structureID string) ([]RegisterRow, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT p.id, p.employee_ref, p.employee_name,
           COALESCE(to_char(p.date_from, 'YYYY-MM-DD'), ''), COALESCE(to_char(p.date_to, 'YYYY-MM-DD'), ''),
           l.rule_code, l.name, l.category_code, l.sequence,
           l.quantity::text, l.rate::text, l.amount::text, l.total::text
    FROM payslips p
    JOIN payslip_lines l ON l.payslip_id = p.id
    WHERE p.tenant_id = $1 AND p.structure_id::text = $2
    ORDER BY p.created_at, p.id, l.position
  `, tenantID, structureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegisterRow
	for rows.Next() {
		var row RegisterRow
		line, err := scanLine(rows, &row.PayslipID, &row.EmployeeRef, &row.EmployeeName, &row.DateFrom, &row.DateTo)
		if err != nil {
			return nil, err
		}
		row.Line = line
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// notFound maps a missing row, or an id that is not a uuid, to sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextFormat {
		return sentinel
	}
	return err
}
