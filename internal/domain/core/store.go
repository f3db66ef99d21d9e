package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	cryptoutil "payrollengine/internal/platform/crypto"
)

var ErrEmployeeNotFound = errors.New("employee not found")

// Directory reads employees. Salaries may be stored encrypted in salary_enc,
// with base_salary as the plaintext fallback.
type Directory struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewDirectory(db *pgxpool.Pool, crypto *cryptoutil.Service) *Directory {
	return &Directory{DB: db, Crypto: crypto}
}

func (d *Directory) Get(ctx context.Context, employeeID string) (Employee, error) {
	var emp Employee
	var salaryPlain decimal.NullDecimal
	var salaryEnc []byte
	err := d.DB.QueryRow(ctx, `
    SELECT id, department, role, tier, status, base_salary, salary_enc
    FROM employees
    WHERE id = $1
  `, employeeID).Scan(&emp.ID, &emp.Department, &emp.Role, &emp.Tier, &emp.Status, &salaryPlain, &salaryEnc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	if err != nil {
		return Employee{}, err
	}
	salary, err := decryptSalary(d.Crypto, salaryEnc, salaryPlain)
	if err != nil {
		return Employee{}, err
	}
	emp.BaseSalary = salary
	return emp, nil
}

// ListActiveIDs returns active employee ids, optionally restricted to departments.
func (d *Directory) ListActiveIDs(ctx context.Context, departments []string) ([]string, error) {
	if departments == nil {
		departments = []string{}
	}
	rows, err := d.DB.Query(ctx, `
    SELECT id
    FROM employees
    WHERE status = $1
      AND (cardinality($2::text[]) = 0 OR department = ANY($2))
    ORDER BY id
  `, EmployeeStatusActive, departments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func decryptSalary(crypto *cryptoutil.Service, encrypted []byte, plain decimal.NullDecimal) (decimal.Decimal, error) {
	if crypto == nil || !crypto.Configured() || len(encrypted) == 0 {
		return plain.Decimal, nil
	}
	value, err := crypto.DecryptString(encrypted)
	if err != nil {
		if plain.Valid {
			return plain.Decimal, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(value)
}
