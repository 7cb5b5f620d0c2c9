package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paastest/clustertest/internal/store"
	"github.com/paastest/clustertest/pkg/logger"
	"github.com/paastest/clustertest/pkg/metrics"
)

// NoData is shown when nothing has been persisted yet.
const NoData = "No data found"

// DocumentStore is the part of store.Store the handlers use.
type DocumentStore interface {
	Path() string
	Read() (*store.Document, error)
	UpdateMessage(ctx context.Context, msg string) (*store.Document, error)
}

// Handler serves the status page and, when messages are enabled, the message form.
type Handler struct {
	store    DocumentStore
	envValue string
	messages bool
	log      *logger.Logger
}

// NewHandler takes the already resolved TEST_ENV_VAR value (or its sentinel).
func NewHandler(s DocumentStore, envValue string, messages bool) *Handler {
	return &Handler{store: s, envValue: envValue, messages: messages, log: logger.Named("web")}
}

// Register installs the page template and routes. Middlewares in writeMW only
// wrap the POST route.
func (h *Handler) Register(r *gin.Engine, writeMW ...gin.HandlerFunc) {
	r.SetHTMLTemplate(indexTemplate)
	r.GET("/", h.Index)
	if h.messages {
		r.POST("/update-message", append(writeMW, h.UpdateMessage)...)
	}
}

// Index renders the page. It always answers 200: storage problems are shown
// in the page, not as an HTTP status.
func (h *Handler) Index(c *gin.Context) {
	data := gin.H{
		"EnvValue": h.envValue,
		"Path":     h.store.Path(),
		"Messages": h.messages,
	}

	doc, err := h.store.Read()
	switch {
	case errors.Is(err, store.ErrNotFound):
		data["Data"] = NoData
		metrics.PageRenders.WithLabelValues("no_data").Inc()
	case err != nil:
		h.log.Errorf("read document: %v", err)
		data["Data"] = "Failed to read data: " + err.Error()
		data["DataError"] = true
		metrics.PageRenders.WithLabelValues("error").Inc()
	default:
		b, merr := doc.MarshalIndent()
		if merr != nil {
			h.log.Errorf("encode document: %v", merr)
			data["Data"] = "Failed to read data: " + merr.Error()
			data["DataError"] = true
			metrics.PageRenders.WithLabelValues("error").Inc()
			break
		}
		data["Data"] = string(b)
		data["Message"] = doc.Message()
		if doc.MessageUpdated != nil {
			data["MessageUpdated"] = doc.MessageUpdated.Format(time.RFC3339)
		}
		metrics.PageRenders.WithLabelValues("ok").Inc()
	}

	c.HTML(http.StatusOK, pageTemplate, data)
}

// UpdateMessage stores the trimmed "message" form field and redirects to "/".
// The redirect happens whatever the store reports.
func (h *Handler) UpdateMessage(c *gin.Context) {
	msg := strings.TrimSpace(c.PostForm("message"))

	_, err := h.store.UpdateMessage(c.Request.Context(), msg)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.log.Warnf("message update dropped: no document at %s", h.store.Path())
		metrics.MessageUpdates.WithLabelValues("dropped").Inc()
	case err != nil:
		h.log.Errorf("message update failed: %v", err)
		metrics.MessageUpdates.WithLabelValues("error").Inc()
	default:
		h.log.Infof("message updated (%d chars)", len([]rune(msg)))
		metrics.MessageUpdates.WithLabelValues("ok").Inc()
	}

	c.Redirect(http.StatusFound, "/")
}
