package payroll

import (
	"context"
)

type StoreAPI interface {
	CreateStructure(ctx context.Context, tenantID string, structure Structure) (string, error)
	ListStructures(ctx context.Context, tenantID string) ([]StructureSummary, error)
	GetStructure(ctx context.Context, tenantID, structureID string) (Structure, error)
	CreatePayslip(ctx context.Context, tenantID string, payslip Payslip, sealedInput []byte) (string, error)
	GetPayslip(ctx context.Context, tenantID, payslipID string) (Payslip, error)
	CountPayslips(ctx context.Context, tenantID, structureID string) (int, error)
	ListPayslips(ctx context.Context, tenantID, structureID string, limit, offset int) ([]Payslip, error)
	PayslipInput(ctx context.Context, tenantID, payslipID string) ([]byte, error)
	RegisterRows(ctx context.Context, tenantID, structureID string) ([]RegisterRow, error)
}
