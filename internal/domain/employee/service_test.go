package employee

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"hrdash/internal/domain/contract"
)

func baseRecord(name, start, end string) map[string]any {
	return map[string]any{
		"name":                name,
		"contract_number":     "PKWT/" + name,
		"contract_start_date": start,
		"contract_end_date":   end,
	}
}

func TestCreateAutoDeactivatesLapsedContract(t *testing.T) {
	f := newFixture(t)
	data := baseRecord("Budi", "01/01/2023", "31/12/2023")
	data["favourite_colour"] = "blue"

	rec, dropped, err := f.service.Create(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, []string{"favourite_colour"}, dropped)
	require.Equal(t, "2023-12-31", rec.ContractEndDate)
	require.NotNil(t, rec.DeactivationReason)
	require.Equal(t, contract.ReasonEndOfContract, *rec.DeactivationReason)
	require.Equal(t, contract.StatusInactive, rec.Status)
}

func TestCreateKeepsExplicitReason(t *testing.T) {
	f := newFixture(t)
	data := baseRecord("Sari", "2023-01-01", "2023-12-31")
	data["deactivation_reason"] = "Resign"

	rec := f.create(t, data)
	require.Equal(t, "Resign", *rec.DeactivationReason)
}

func TestCreateRequiresNameAndDates(t *testing.T) {
	f := newFixture(t)
	for _, field := range []string{"name", "contract_start_date", "contract_end_date"} {
		data := baseRecord("Andi", "2024-01-01", "2024-12-31")
		data[field] = "  "

		_, _, err := f.service.Create(context.Background(), data)
		verr, ok := AsValidation(err)
		require.True(t, ok, field)
		require.Equal(t, field, verr.Field)
	}
}

func TestCreateRejectsBadDate(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.service.Create(context.Background(), baseRecord("Andi", "2024-13-45", "2024-12-31"))
	verr, ok := AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "contract_start_date", verr.Field)
}

func TestCreateCoercesNumericAndIgnoresSlotFields(t *testing.T) {
	f := newFixture(t)
	data := baseRecord("Rina", "2024-01-01", "2025-01-01")
	data["basic_salary"] = "4.500.000,50"
	data["field_allowance"] = ""
	data["cv_filepath"] = "/etc/passwd"

	rec := f.create(t, data)
	require.Equal(t, json.Number("4500000.5"), rec.Attributes["basic_salary"])
	require.Nil(t, rec.Attributes["field_allowance"])
	_, ok := rec.Document("cv")
	require.False(t, ok)
}

func TestListBoundary(t *testing.T) {
	f := newFixture(t)
	yesterday := f.create(t, baseRecord("Kemarin", "2024-01-01", "2024-06-14"))
	today := f.create(t, baseRecord("Hariini", "2024-01-01", "2024-06-15"))
	later := f.create(t, baseRecord("Nanti", "2024-01-01", "2024-09-01"))

	// Created already lapsed, so it carries EOC; clear it to test the date rule alone.
	f.repo.mu.Lock()
	rec := f.repo.rows[yesterday.ID]
	rec.DeactivationReason = nil
	f.repo.rows[yesterday.ID] = rec
	f.repo.mu.Unlock()

	active, err := f.service.ListActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{today.ID, later.ID}, ids(active))
	require.Equal(t, 0, active[0].DaysRemaining)

	inactive, err := f.service.ListInactive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{yesterday.ID}, ids(inactive))
	require.Equal(t, -1, inactive[0].DaysRemaining)
}

func TestUpdateNonContractFieldWritesNoHistory(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Dewi", "2024-01-01", "2024-12-31"))

	updated, err := f.service.Update(context.Background(), rec.ID, map[string]any{"phone": "0812-1111"}, "hr")
	require.NoError(t, err)
	require.Equal(t, "0812-1111", updated.Attributes["phone"])
	require.Equal(t, 0, f.repo.historyCount(rec.ID))

	_, err = f.service.Update(context.Background(), rec.ID, map[string]any{"contract_end_date": "31/12/2025"}, "hr")
	require.NoError(t, err)
	entries, err := f.service.ContractHistory(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "2024-12-31", *entries[0].OldEndDate)
	require.Equal(t, "2025-12-31", *entries[0].NewEndDate)
	require.Equal(t, "hr", entries[0].ModifiedBy)
}

func TestUpdateNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Update(context.Background(), 99, map[string]any{"phone": "1"}, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRejectsEmptyRequiredField(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Dewi", "2024-01-01", "2024-12-31"))
	_, err := f.service.Update(context.Background(), rec.ID, map[string]any{"name": ""}, "")
	verr, ok := AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "name", verr.Field)
}

func TestUpdateLapsedEndDateSetsEOC(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Eko", "2024-01-01", "2024-12-31"))

	updated, err := f.service.Update(context.Background(), rec.ID, map[string]any{"contract_end_date": "2024-05-31"}, "")
	require.NoError(t, err)
	require.Equal(t, contract.ReasonEndOfContract, *updated.DeactivationReason)
	require.Equal(t, contract.StatusInactive, updated.Status)
}

func TestSetInactive(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Fajar", "2024-01-01", "2024-12-31"))

	_, err := f.service.SetInactive(context.Background(), rec.ID, "   ")
	_, ok := AsValidation(err)
	require.True(t, ok)

	_, err = f.service.SetInactive(context.Background(), 404, "Resign")
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := f.service.SetInactive(context.Background(), rec.ID, "Resign")
	require.NoError(t, err)
	require.Equal(t, "Resign", *updated.DeactivationReason)
	require.Equal(t, "2024-12-31", updated.ContractEndDate)
	require.Equal(t, contract.StatusInactive, updated.Status)
}

func TestRestoreRequiresContractChange(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Gita", "2023-01-01", "2023-12-31"))
	require.Equal(t, contract.StatusInactive, rec.Status)

	_, err := f.service.Restore(context.Background(), rec.ID, map[string]any{}, "hr")
	require.ErrorIs(t, err, ErrRestoreRequiresContractChange)

	_, err = f.service.Restore(context.Background(), rec.ID, map[string]any{"contract_number": "PKWT/NEW"}, "hr")
	verr, ok := AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "contract_end_date", verr.Field)

	restored, err := f.service.Restore(context.Background(), rec.ID, map[string]any{
		"contract_start_date": "2024-01-01",
		"contract_end_date":   "31/12/2024",
	}, "hr")
	require.NoError(t, err)
	require.Nil(t, restored.DeactivationReason)
	require.Equal(t, contract.StatusActive, restored.Status)
	require.Equal(t, 1, f.repo.historyCount(rec.ID))

	_, err = f.service.Restore(context.Background(), rec.ID, map[string]any{"contract_end_date": "2025-12-31"}, "hr")
	require.ErrorIs(t, err, ErrNotInactive)
}

func TestUpdateCannotClearReasonWithoutContractChange(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Joko", "2024-01-01", "2099-12-31"))
	_, err := f.service.SetInactive(context.Background(), rec.ID, "Resign")
	require.NoError(t, err)

	_, err = f.service.Update(context.Background(), rec.ID, map[string]any{"deactivation_reason": nil}, "hr")
	require.ErrorIs(t, err, ErrRestoreRequiresContractChange)
	_, err = f.service.Update(context.Background(), rec.ID, map[string]any{"deactivation_reason": "  "}, "hr")
	require.ErrorIs(t, err, ErrRestoreRequiresContractChange)

	current, err := f.service.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, "Resign", *current.DeactivationReason)
	require.Equal(t, contract.StatusInactive, current.Status)

	updated, err := f.service.Update(context.Background(), rec.ID, map[string]any{"deactivation_reason": "Mutasi"}, "hr")
	require.NoError(t, err)
	require.Equal(t, "Mutasi", *updated.DeactivationReason)

	restored, err := f.service.Update(context.Background(), rec.ID, map[string]any{
		"deactivation_reason": nil,
		"contract_number":     "PKWT/Joko/2",
	}, "hr")
	require.NoError(t, err)
	require.Nil(t, restored.DeactivationReason)
	require.Equal(t, contract.StatusActive, restored.Status)
}

func TestRestoreIgnoresReasonInPayload(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Hadi", "2024-01-01", "2024-12-31"))
	_, err := f.service.SetInactive(context.Background(), rec.ID, "Mutasi")
	require.NoError(t, err)

	restored, err := f.service.Restore(context.Background(), rec.ID, map[string]any{
		"contract_number":     "PKWT/2",
		"deactivation_reason": "still here",
	}, "")
	require.NoError(t, err)
	require.Nil(t, restored.DeactivationReason)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Indah", "2024-01-01", "2024-12-31"))
	f.repo.certificates[rec.ID] = 2
	for _, end := range []string{"2025-01-31", "2025-02-28", "2025-03-31"} {
		_, err := f.service.Update(context.Background(), rec.ID, map[string]any{"contract_end_date": end}, "")
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.repo.historyCount(rec.ID))

	removed, err := f.service.Delete(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, removed.ID)
	require.Equal(t, 0, f.repo.historyCount(rec.ID))
	require.Zero(t, f.repo.certificates[rec.ID])

	_, err = f.service.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.service.Delete(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	lapsed := f.create(t, baseRecord("Joko", "2024-01-01", "2024-12-31"))
	resigned := f.create(t, baseRecord("Kiki", "2024-01-01", "2024-12-31"))
	_, err := f.service.SetInactive(context.Background(), resigned.ID, "Resign")
	require.NoError(t, err)

	// Move the clock past both contracts.
	f.service.Now = func() time.Time { return testToday.AddDate(1, 0, 0) }

	expired, err := f.service.CheckExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{lapsed.ID}, ids(expired))

	result, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 1, result.Deactivated)
	require.Equal(t, OutcomeDeactivated, result.Records[0].Outcome)

	got, err := f.service.Get(context.Background(), lapsed.ID)
	require.NoError(t, err)
	require.Equal(t, contract.ReasonEndOfContract, *got.DeactivationReason)

	again, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.Checked)
}

func TestSweepReportsFailures(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, baseRecord("Lina", "2024-01-01", "2024-12-31"))
	f.service.Now = func() time.Time { return testToday.AddDate(1, 0, 0) }
	f.repo.failUpdate = errors.New("connection reset")

	result, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, rec.ID, result.Records[0].ID)
	require.Equal(t, OutcomeFailed, result.Records[0].Outcome)
}

func TestListExpiring(t *testing.T) {
	f := newFixture(t)
	soon := f.create(t, baseRecord("Mira", "2024-01-01", "2024-06-30"))
	f.create(t, baseRecord("Nina", "2024-01-01", "2024-12-31"))

	records, err := f.service.ListExpiring(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, []int64{soon.ID}, ids(records))
	require.Equal(t, 15, records[0].DaysRemaining)

	_, err = f.service.ListExpiring(context.Background(), -1)
	_, ok := AsValidation(err)
	require.True(t, ok)
}

func TestRecordMarshalsFlat(t *testing.T) {
	f := newFixture(t)
	data := baseRecord("Oki", "2024-01-01", "2024-12-31")
	data["basic_salary"] = "5000000"
	rec := f.create(t, data)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, "Oki", out["name"])
	require.Equal(t, "active", out["status"])
	require.Equal(t, float64(5000000), out["basic_salary"])
	require.Contains(t, out, "cv_filename")
	require.Nil(t, out["cv_filename"])
}

func ids(records []Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}
