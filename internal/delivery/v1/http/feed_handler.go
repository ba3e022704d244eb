package http

import (
	"net/http"
	"strconv"

	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

const (
	feedContentType         = "application/xml; charset=utf-8"
	defaultFeedCacheControl = "public, max-age=3600"
)

type FeedHandler struct {
	feedUsecase  usecase.FeedUC
	cacheControl string
	logger       logger.Logger
}

func NewFeedHandler(feedUsecase usecase.FeedUC, cacheControl string, logger logger.Logger) *FeedHandler {
	if cacheControl == "" {
		cacheControl = defaultFeedCacheControl
	}
	return &FeedHandler{feedUsecase: feedUsecase, cacheControl: cacheControl, logger: logger}
}

// feed отдаёт XML-фид маркетплейса. Ошибка сборки возвращается JSON-ошибкой, частичный документ не отдаётся.
func (f *FeedHandler) feed(w http.ResponseWriter, r *http.Request) {
	res, err := f.feedUsecase.Generate(r.Context())
	if err != nil {
		respondError(f.logger, w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", feedContentType)
	w.Header().Set("Cache-Control", f.cacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(res.Body); err != nil {
		f.logger.Warnf("write feed response: %v", err)
	}
}
