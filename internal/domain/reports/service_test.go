package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hrdash/internal/domain/employee"
)

type fakeCounter struct {
	today, until time.Time
}

func (f *fakeCounter) Summary(_ context.Context, today, until time.Time) (Summary, error) {
	f.today, f.until = today, until
	return Summary{Total: 5, Active: 3, Inactive: 2, Expiring: 1}, nil
}

type fakeContracts struct {
	days    int
	records []employee.Record
}

func (f *fakeContracts) Today() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }

func (f *fakeContracts) ListExpiring(_ context.Context, days int) ([]employee.Record, error) {
	f.days = days
	return f.records, nil
}

func TestSummaryUsesWindow(t *testing.T) {
	schema, _ := employee.LookupProject("umran")
	counter := &fakeCounter{}
	svc := NewService(schema, counter, &fakeContracts{})

	out, err := svc.Summary(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, "umran", out.Project)
	require.Equal(t, DefaultExpiringDays, out.Days)
	require.Equal(t, int64(3), out.Active)
	require.Equal(t, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), counter.until)
}

func TestExpiringPDF(t *testing.T) {
	schema, _ := employee.LookupProject("umran")
	number := "PKWT/007/2024"
	contracts := &fakeContracts{records: []employee.Record{
		{ID: 1, Name: "Siti Nurhaliza", ContractNumber: &number, ContractStartDate: "2024-01-01", ContractEndDate: "2024-06-20", DaysRemaining: 5,
			Attributes: map[string]any{"position": "Welder"}},
		{ID: 2, Name: "Andi Wijaya Kusuma Putra Pratama Saputra Hidayat Nugroho", ContractStartDate: "2024-02-01", ContractEndDate: "2024-07-01", DaysRemaining: 16},
	}}
	svc := NewService(schema, &fakeCounter{}, contracts)

	var buf bytes.Buffer
	n, err := svc.ExpiringPDF(context.Background(), &buf, 1000)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 366, contracts.days)
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestExpiringPDFEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := ExpiringReport{Title: "Umran", Today: time.Now(), Days: 30}.Render(&buf)
	require.NoError(t, err)
	require.NotZero(t, buf.Len())
}
