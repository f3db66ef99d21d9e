package core

import "github.com/shopspring/decimal"

// Employee is the directory view the payroll engine needs.
type Employee struct {
	ID         string          `json:"id"`
	BaseSalary decimal.Decimal `json:"baseSalary"`
	Department string          `json:"department"`
	Role       string          `json:"role"`
	Tier       string          `json:"tier"`
	Status     string          `json:"status"`
}

const EmployeeStatusActive = "active"
