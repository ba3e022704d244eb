package converter

import (
	"testing"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductConverter_NullableStatuses(t *testing.T) {
	conv := NewProductConverter()

	model, err := conv.ToModel(&domain.ProductRecord{ID: 1, Name: "Kettle"})
	require.NoError(t, err)
	assert.Nil(t, model.ConveyorStatus)
	assert.Nil(t, model.KaspiStatus)
	assert.Equal(t, "{}", string(model.Specs))

	rec := conv.ToEntity(model)
	assert.Equal(t, domain.ConveyorIdle, rec.EffectiveConveyorStatus())
	assert.Equal(t, domain.KaspiStatusNone, rec.KaspiStatus)
}

func TestProductConverter_KeepsUnknownSpecs(t *testing.T) {
	conv := NewProductConverter()
	status := "rejected"

	rec := conv.ToEntity(&ProductModel{
		ID:          7,
		Specs:       []byte(`{"stock": 3, "vendor_note": {"a": [1, 2]}}`),
		KaspiStatus: &status,
		CreatedAt:   time.Now(),
	})
	require.NotNil(t, rec.Specs.Stock)
	assert.Equal(t, 3, *rec.Specs.Stock)
	assert.Equal(t, domain.KaspiStatusRejected, rec.KaspiStatus)

	model, err := conv.ToModel(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock": 3, "vendor_note": {"a": [1, 2]}}`, string(model.Specs))
	assert.Equal(t, "rejected", *model.KaspiStatus)
}

func TestProductConverter_CorruptSpecs(t *testing.T) {
	rec := NewProductConverter().ToEntity(&ProductModel{ID: 1, Specs: []byte(`"not an object"`)})
	assert.False(t, rec.Specs.Has(domain.SpecStock))
	assert.False(t, rec.FeedEligible())
}

func TestJobConverter(t *testing.T) {
	conv := NewJobConverter()
	job := domain.NewJob(domain.JobModeImport, "phones", 2)
	job.ID = 5

	got := conv.ToEntity(conv.ToModel(job))
	assert.Equal(t, job, got)
}
