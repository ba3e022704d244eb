package converter

import (
	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
)

// ProductConverter преобразует ProductRecord между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToModel(entity *domain.ProductRecord) (*ProductModel, error)
	ToEntity(model *ProductModel) *domain.ProductRecord
}

// JobConverter преобразует Job между domain и моделью PostgreSQL.
type JobConverter interface {
	ToModel(entity *domain.Job) *JobModel
	ToEntity(model *JobModel) *domain.Job
}

type productConverter struct{}

func NewProductConverter() ProductConverter {
	return productConverter{}
}

func (productConverter) ToModel(entity *domain.ProductRecord) (*ProductModel, error) {
	specs, err := entity.Specs.MarshalJSON()
	if err != nil {
		return nil, err
	}

	return &ProductModel{
		ID:                entity.ID,
		Name:              entity.Name,
		Brand:             entity.Brand,
		Description:       entity.Description,
		Price:             entity.Price,
		Specs:             specs,
		ConveyorStatus:    ConvertNullableString(string(entity.ConveyorStatus)),
		MSCreated:         entity.MSCreated,
		StockAdded:        entity.StockAdded,
		KaspiCreated:      entity.KaspiCreated,
		KaspiStatus:       ConvertNullableString(string(entity.KaspiStatus)),
		KaspiDetails:      entity.KaspiDetails,
		ModerationRetries: entity.ModerationRetries,
		ConveyorLog:       entity.ConveyorLog,
		CreatedAt:         entity.CreatedAt,
		UpdatedAt:         entity.UpdatedAt,
	}, nil
}

// ToEntity не падает на повреждённом specs: нечитаемый JSON даёт пустой набор атрибутов.
func (productConverter) ToEntity(model *ProductModel) *domain.ProductRecord {
	specs, err := domain.ParseSpecs(model.Specs)
	if err != nil {
		specs = domain.Specs{}
	}

	return &domain.ProductRecord{
		ID:                model.ID,
		Name:              model.Name,
		Brand:             model.Brand,
		Description:       model.Description,
		Price:             model.Price,
		Specs:             specs,
		ConveyorStatus:    domain.ConveyorStatus(ConvertStringPointer(model.ConveyorStatus)),
		MSCreated:         model.MSCreated,
		StockAdded:        model.StockAdded,
		KaspiCreated:      model.KaspiCreated,
		KaspiStatus:       domain.KaspiStatus(ConvertStringPointer(model.KaspiStatus)),
		KaspiDetails:      model.KaspiDetails,
		ModerationRetries: model.ModerationRetries,
		ConveyorLog:       model.ConveyorLog,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

type jobConverter struct{}

func NewJobConverter() JobConverter {
	return jobConverter{}
}

func (jobConverter) ToModel(entity *domain.Job) *JobModel {
	return &JobModel{
		ID:        entity.ID,
		Mode:      string(entity.Mode),
		Query:     entity.Query,
		Page:      entity.Page,
		Status:    string(entity.Status),
		Log:       entity.Log,
		CreatedAt: entity.CreatedAt,
	}
}

func (jobConverter) ToEntity(model *JobModel) *domain.Job {
	return &domain.Job{
		ID:        model.ID,
		Mode:      domain.JobMode(model.Mode),
		Query:     model.Query,
		Page:      model.Page,
		Status:    domain.JobStatus(model.Status),
		Log:       model.Log,
		CreatedAt: model.CreatedAt,
	}
}

// ConvertNullableString отображает пустую строку в NULL.
func ConvertNullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ConvertStringPointer(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
