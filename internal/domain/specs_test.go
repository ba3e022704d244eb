package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecs_KnownKeys(t *testing.T) {
	specs, err := ParseSpecs([]byte(`{
		"stock": "7",
		"image_urls": ["https://img/1.jpg", "", "https://img/2.jpg"],
		"kaspi_category": "Smartphones",
		"kaspi_category_id": 1024,
		"kaspi_sku": " SKU-1 ",
		"is_in_feed": "true",
		"vendor_note": {"nested": [1, 2]}
	}`))
	require.NoError(t, err)

	require.NotNil(t, specs.Stock)
	assert.Equal(t, 7, *specs.Stock)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, specs.ImageURLs)
	assert.Equal(t, "Smartphones", specs.KaspiCategory)
	assert.Equal(t, "1024", specs.KaspiCategoryID)
	assert.Equal(t, "SKU-1", specs.KaspiSKU)
	assert.True(t, specs.IsInFeed)
	assert.False(t, specs.IsClosed)
	assert.True(t, specs.Has("vendor_note"))
}

func TestParseSpecs_EmptyAndNull(t *testing.T) {
	for _, input := range []string{"", "null", "  ", "{}"} {
		specs, err := ParseSpecs([]byte(input))
		require.NoError(t, err, input)
		assert.Nil(t, specs.Stock)
		assert.Empty(t, specs.Keys())
		assert.Equal(t, 10, specs.StockOr(10))
	}
}

func TestParseSpecs_NotAnObject(t *testing.T) {
	_, err := ParseSpecs([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestParseSpecs_MalformedValuesAreDefaults(t *testing.T) {
	specs, err := ParseSpecs([]byte(`{"stock": {"a": 1}, "is_in_feed": [true], "kaspi_sku": false, "image_urls": 5}`))
	require.NoError(t, err)

	assert.Nil(t, specs.Stock)
	assert.False(t, specs.IsInFeed)
	assert.Empty(t, specs.KaspiSKU)
	assert.Equal(t, []string{"5"}, specs.ImageURLs)
}

func TestSpecs_WithPreservesOtherKeys(t *testing.T) {
	original := []byte(`{"stock":3,"vendor":{"x":[1,"two",null]},"kaspi_category_id":"1","weird":"  spaced  "}`)
	specs, err := ParseSpecs(original)
	require.NoError(t, err)

	updated, err := specs.With(SpecKaspiCategoryID, "2048")
	require.NoError(t, err)
	assert.Equal(t, "2048", updated.KaspiCategoryID)
	assert.Equal(t, "1", specs.KaspiCategoryID, "source must stay untouched")

	var before, after map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(original, &before))
	encoded, err := json.Marshal(updated)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, &after))

	assert.Len(t, after, len(before))
	for k, v := range before {
		if k == SpecKaspiCategoryID {
			continue
		}
		assert.JSONEq(t, string(v), string(after[k]), k)
	}
	assert.JSONEq(t, `"2048"`, string(after[SpecKaspiCategoryID]))
}

func TestSpecs_WithAddsMissingKey(t *testing.T) {
	updated, err := Specs{}.With(SpecIsClosed, true)
	require.NoError(t, err)

	assert.True(t, updated.IsClosed)
	assert.Equal(t, []string{SpecIsClosed}, updated.Keys())
}

func TestSpecs_MarshalEmpty(t *testing.T) {
	encoded, err := json.Marshal(Specs{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(encoded))
}

func TestKaspiAttributes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []KaspiAttribute
	}{
		{
			name: "map form sorted by code",
			raw:  `{"kaspi_attributes": {"Phones*Memory": 128, "Phones*Color": ["black", "white"], "Phones*Empty": ""}}`,
			want: []KaspiAttribute{
				{Code: "Phones*Color", Values: []string{"black", "white"}},
				{Code: "Phones*Memory", Values: []string{"128"}},
			},
		},
		{
			name: "list form keeps order",
			raw:  `{"kaspi_attributes": [{"code": "A*Weight", "value": "1.5"}, {"code": "x", "name": "Страна", "value": ["KZ"]}, {"value": "lost"}]}`,
			want: []KaspiAttribute{
				{Code: "A*Weight", Values: []string{"1.5"}},
				{Code: "x", Name: "Страна", Values: []string{"KZ"}},
			},
		},
		{
			name: "garbage",
			raw:  `{"kaspi_attributes": "oops"}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := ParseSpecs([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, specs.KaspiAttributes)
		})
	}
}

func TestKaspiAttribute_DisplayName(t *testing.T) {
	assert.Equal(t, "Color", KaspiAttribute{Code: "Smartphones*Color"}.DisplayName())
	assert.Equal(t, "Цвет", KaspiAttribute{Code: "Smartphones*Color", Name: "Цвет"}.DisplayName())
	assert.Equal(t, "plain", KaspiAttribute{Code: "plain"}.DisplayName())
	assert.Equal(t, "", KaspiAttribute{Code: "trailing*"}.DisplayName())
}
