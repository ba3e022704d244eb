package http

import (
	"net/http"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

type JobHandler struct {
	jobUsecase usecase.JobUC
	logger     logger.Logger
}

func NewJobHandler(jobUsecase usecase.JobUC, logger logger.Logger) *JobHandler {
	return &JobHandler{jobUsecase: jobUsecase, logger: logger}
}

type enqueueJobRequest struct {
	Mode  string `json:"mode"`
	Query string `json:"query"`
	Page  int    `json:"page"`
}

type jobResponse struct {
	ID        int64     `json:"id"`
	Mode      string    `json:"mode"`
	Query     string    `json:"query"`
	Page      int       `json:"page"`
	Status    string    `json:"status"`
	Log       string    `json:"log"`
	CreatedAt time.Time `json:"created_at"`
}

type jobsStatusResponse struct {
	Running bool          `json:"running"`
	Latest  *jobResponse  `json:"latest"`
	Jobs    []jobResponse `json:"jobs"`
}

func (j *JobHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(j.logger, w, r, err, nil)
		return
	}

	res, err := j.jobUsecase.Status(r.Context(), limit)
	if err != nil {
		respondError(j.logger, w, r, err, nil)
		return
	}

	out := jobsStatusResponse{
		Running: res.Running,
		Jobs:    make([]jobResponse, 0, len(res.Jobs)),
	}
	if res.Latest != nil {
		latest := toJobResponse(res.Latest)
		out.Latest = &latest
	}
	for i := range res.Jobs {
		out.Jobs = append(out.Jobs, toJobResponse(&res.Jobs[i]))
	}

	WriteSuccess(w, http.StatusOK, out)
}

func (j *JobHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(j.logger, w, r, err, nil)
		return
	}

	job, err := j.jobUsecase.Enqueue(r.Context(), usecase.NewEnqueueJobReq(domain.JobMode(req.Mode), req.Query, req.Page))
	if err != nil {
		respondError(j.logger, w, r, err, map[string]any{"mode": req.Mode})
		return
	}

	WriteSuccess(w, http.StatusCreated, toJobResponse(job))
}

// stop останавливает все ожидающие задания; уже взятые в работу дорабатывают.
func (j *JobHandler) stop(w http.ResponseWriter, r *http.Request) {
	res, err := j.jobUsecase.Stop(r.Context())
	if err != nil {
		respondError(j.logger, w, r, err, nil)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]any{"stopped": res.Stopped})
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		Mode:      string(job.Mode),
		Query:     job.Query,
		Page:      job.Page,
		Status:    string(job.Status),
		Log:       job.Log,
		CreatedAt: job.CreatedAt,
	}
}
