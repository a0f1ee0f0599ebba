package service

import (
	"context"
	"testing"

	"medassist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeMedRepo 是 MedicationRepository 的内存实现。
type fakeMedRepo struct {
	medications map[uint]*model.Medication
	nextID      uint
}

func newFakeMedRepo() *fakeMedRepo {
	return &fakeMedRepo{medications: make(map[uint]*model.Medication)}
}

func (r *fakeMedRepo) Create(med *model.Medication) error {
	r.nextID++
	med.ID = r.nextID
	r.medications[med.ID] = med
	return nil
}

func (r *fakeMedRepo) FindByID(id uint) (*model.Medication, error) {
	med, ok := r.medications[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *med
	return &out, nil
}

func (r *fakeMedRepo) FindByUserID(userID uint) ([]model.Medication, error) {
	var out []model.Medication
	for _, med := range r.medications {
		if med.UserID == userID {
			out = append(out, *med)
		}
	}
	return out, nil
}

func (r *fakeMedRepo) Update(med *model.Medication) error {
	if _, ok := r.medications[med.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	out := *med
	r.medications[med.ID] = &out
	return nil
}

func (r *fakeMedRepo) Delete(id uint) error {
	delete(r.medications, id)
	return nil
}

func TestAddMedicationRequiresName(t *testing.T) {
	svc := NewMedicationService(newFakeMedRepo())

	_, err := svc.Add(context.Background(), 1, "", "10mg", "")
	assert.Error(t, err)
}

func TestEditMedicationKeepsUnsetFields(t *testing.T) {
	svc := NewMedicationService(newFakeMedRepo())
	med, err := svc.Add(context.Background(), 1, "氨氯地平", "5mg", "早餐后")
	require.NoError(t, err)

	newDosage := "10mg"
	updated, err := svc.Edit(context.Background(), med.ID, 1, nil, &newDosage, nil)
	require.NoError(t, err)
	assert.Equal(t, "氨氯地平", updated.Name)
	assert.Equal(t, "10mg", updated.Dosage)
	assert.Equal(t, "早餐后", updated.Notes)
}

func TestMedicationOperationsRejectForeignUser(t *testing.T) {
	svc := NewMedicationService(newFakeMedRepo())
	med, err := svc.Add(context.Background(), 2, "氨氯地平", "5mg", "")
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), med.ID, 1, nil, nil, nil)
	assert.ErrorIs(t, err, ErrMedicationNotOwned)

	assert.ErrorIs(t, svc.Delete(context.Background(), med.ID, 1), ErrMedicationNotOwned)

	_, err = svc.ToggleReminders(context.Background(), med.ID, 1, true)
	assert.ErrorIs(t, err, ErrMedicationNotOwned)
}

func TestToggleReminders(t *testing.T) {
	svc := NewMedicationService(newFakeMedRepo())
	med, err := svc.Add(context.Background(), 1, "氨氯地平", "5mg", "")
	require.NoError(t, err)

	updated, err := svc.ToggleReminders(context.Background(), med.ID, 1, true)
	require.NoError(t, err)
	assert.True(t, updated.RemindersOn)

	updated, err = svc.ToggleReminders(context.Background(), med.ID, 1, false)
	require.NoError(t, err)
	assert.False(t, updated.RemindersOn)
}

func TestSetReminderTimesStoresJSON(t *testing.T) {
	svc := NewMedicationService(newFakeMedRepo())
	med, err := svc.Add(context.Background(), 1, "氨氯地平", "5mg", "")
	require.NoError(t, err)

	updated, err := svc.SetReminderTimes(context.Background(), med.ID, 1, []string{"08:00", "20:30"})
	require.NoError(t, err)
	assert.JSONEq(t, `["08:00","20:30"]`, updated.ReminderTimes)
}

func TestSetReminderTimesRejectsMalformedTime(t *testing.T) {
	svc := NewMedicationService(newFakeMedRepo())
	med, err := svc.Add(context.Background(), 1, "氨氯地平", "5mg", "")
	require.NoError(t, err)

	_, err = svc.SetReminderTimes(context.Background(), med.ID, 1, []string{"25:99"})
	assert.Error(t, err)

	_, err = svc.SetReminderTimes(context.Background(), med.ID, 1, []string{"早上八点"})
	assert.Error(t, err)
}
