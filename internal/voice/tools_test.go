package voice

import (
	"context"
	"encoding/json"
	"testing"

	"medassist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeMedications 是 service.MedicationService 的内存实现。
type fakeMedications struct {
	medications map[uint]*model.Medication
	nextID      uint
}

func newFakeMedications() *fakeMedications {
	return &fakeMedications{medications: make(map[uint]*model.Medication)}
}

func (f *fakeMedications) List(ctx context.Context, userID uint) ([]model.Medication, error) {
	var out []model.Medication
	for _, med := range f.medications {
		if med.UserID == userID {
			out = append(out, *med)
		}
	}
	return out, nil
}

func (f *fakeMedications) Add(ctx context.Context, userID uint, name, dosage, notes string) (*model.Medication, error) {
	f.nextID++
	med := &model.Medication{ID: f.nextID, UserID: userID, Name: name, Dosage: dosage, Notes: notes}
	f.medications[med.ID] = med
	return med, nil
}

func (f *fakeMedications) Edit(ctx context.Context, medicationID, userID uint, name, dosage, notes *string) (*model.Medication, error) {
	med, ok := f.medications[medicationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if name != nil {
		med.Name = *name
	}
	if dosage != nil {
		med.Dosage = *dosage
	}
	if notes != nil {
		med.Notes = *notes
	}
	return med, nil
}

func (f *fakeMedications) Delete(ctx context.Context, medicationID, userID uint) error {
	delete(f.medications, medicationID)
	return nil
}

func (f *fakeMedications) ToggleReminders(ctx context.Context, medicationID, userID uint, on bool) (*model.Medication, error) {
	med, ok := f.medications[medicationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	med.RemindersOn = on
	return med, nil
}

func (f *fakeMedications) SetReminderTimes(ctx context.Context, medicationID, userID uint, times []string) (*model.Medication, error) {
	med, ok := f.medications[medicationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	b, _ := json.Marshal(times)
	med.ReminderTimes = string(b)
	return med, nil
}

func TestDispatchAddAndListMedications(t *testing.T) {
	meds := newFakeMedications()
	d := NewToolDispatcher(meds, newFakeConversations())

	result, err := d.Dispatch(context.Background(), 1, 1, ToolAddMedication, json.RawMessage(`{"name":"氨氯地平","dosage":"5mg"}`))
	require.NoError(t, err)
	assert.Contains(t, result, "氨氯地平")

	result, err = d.Dispatch(context.Background(), 1, 1, ToolListMedications, nil)
	require.NoError(t, err)

	var listed []model.Medication
	require.NoError(t, json.Unmarshal([]byte(result), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "5mg", listed[0].Dosage)
}

func TestDispatchDeleteMedication(t *testing.T) {
	meds := newFakeMedications()
	d := NewToolDispatcher(meds, newFakeConversations())

	_, err := d.Dispatch(context.Background(), 1, 1, ToolAddMedication, json.RawMessage(`{"name":"氨氯地平"}`))
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), 1, 1, ToolDeleteMedication, json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":true}`, result)
	assert.Empty(t, meds.medications)
}

func TestDispatchCheckCameraWithObservation(t *testing.T) {
	conversations := newFakeConversations()
	conversations.latestObservation = "药瓶放在桌上"
	d := NewToolDispatcher(newFakeMedications(), conversations)

	result, err := d.Dispatch(context.Background(), 1, 1, ToolCheckCamera, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"observation":"药瓶放在桌上"}`, result)
}

func TestDispatchCheckCameraWithoutObservation(t *testing.T) {
	d := NewToolDispatcher(newFakeMedications(), newFakeConversations())

	result, err := d.Dispatch(context.Background(), 1, 1, ToolCheckCamera, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"observation":null}`, result)
}

func TestDispatchRejectsUnknownTool(t *testing.T) {
	d := NewToolDispatcher(newFakeMedications(), newFakeConversations())

	_, err := d.Dispatch(context.Background(), 1, 1, "erase_database", nil)
	assert.Error(t, err)
}

func TestDispatchRejectsMalformedArgs(t *testing.T) {
	d := NewToolDispatcher(newFakeMedications(), newFakeConversations())

	_, err := d.Dispatch(context.Background(), 1, 1, ToolAddMedication, json.RawMessage(`not-json`))
	assert.Error(t, err)
}
