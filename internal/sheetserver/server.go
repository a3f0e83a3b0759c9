// Package sheetserver serves a workbook over the same action API the
// spreadsheet web app exposes, for local development and end-to-end tests.
package sheetserver

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/five82/orderdesk/internal/sheetapi"
)

// DefaultRate mirrors the web app's per-client quota.
const DefaultRate = "60-M"

// Options configure a Server.
type Options struct {
	// Rate is a limiter formatted rate such as "60-M". Empty uses DefaultRate;
	// "off" disables limiting.
	Rate string
	// SavePath, when set, receives the workbook after every mutation.
	SavePath string
	Logger   *log.Logger
	Now      func() time.Time
}

// Server holds the workbook in memory and answers API actions against it.
type Server struct {
	logger   *log.Logger
	savePath string
	now      func() time.Time
	rate     limiter.Rate
	limited  bool

	mu        sync.RWMutex
	wb        *Workbook
	updatedAt time.Time
	seq       int
}

// New builds a Server over wb.
func New(wb *Workbook, opts Options) (*Server, error) {
	if wb == nil {
		wb = NewWorkbook()
	}
	s := &Server{logger: opts.Logger, savePath: opts.SavePath, now: opts.Now, wb: wb}
	if s.now == nil {
		s.now = time.Now
	}
	s.updatedAt = s.now().UTC()
	s.seq = len(wb.Sheet(SheetOrders).Rows)

	formatted := strings.TrimSpace(opts.Rate)
	if formatted == "" {
		formatted = DefaultRate
	}
	if !strings.EqualFold(formatted, "off") {
		rate, err := limiter.NewRateFromFormatted(formatted)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
		}
		s.rate = rate
		s.limited = true
	}
	return s, nil
}

// Handler returns the gin engine. Every path answers so both /exec and /dev
// style deployment URLs work.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.limited {
		r.Use(mgin.NewMiddleware(
			limiter.New(memory.NewStore(), s.rate),
			mgin.WithLimitReachedHandler(func(c *gin.Context) {
				c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "Rate limit exceeded", "request_id": newRequestID()})
			}),
		))
	}
	r.NoRoute(s.handle)
	return r
}

// UpdatedAt reports the current freshness stamp.
func (s *Server) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Workbook returns the live workbook. Callers must not mutate it while the
// server is handling requests.
func (s *Server) Workbook() *Workbook {
	return s.wb
}

func (s *Server) handle(c *gin.Context) {
	action := c.Query("action")
	cid := c.Query("cid")
	requestID := newRequestID()
	s.logf("[sheet] %s %s %s %s", c.Request.Method, action, cid, requestID)

	var (
		body gin.H
		err  error
	)
	switch {
	case c.Request.Method == http.MethodGet:
		body, err = s.read(action)
	case c.Request.Method == http.MethodPost:
		body, err = s.write(c, action)
	default:
		err = fmt.Errorf("method %s not allowed", c.Request.Method)
	}
	if err != nil {
		s.logf("[sheet] %s %s failed: %v", action, cid, err)
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error(), "request_id": requestID})
		return
	}
	body["ok"] = true
	body["request_id"] = requestID
	c.JSON(http.StatusOK, body)
}

func (s *Server) read(action string) (gin.H, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stamp := s.updatedAt.Format(time.RFC3339Nano)
	switch action {
	case sheetapi.ActionCategories:
		return gin.H{"categories": s.wb.Sheet(SheetCategories).Objects(), "updated_at": stamp}, nil
	case sheetapi.ActionProducts:
		return gin.H{"products": s.wb.Sheet(SheetProducts).Objects(), "updated_at": stamp}, nil
	case sheetapi.ActionListOrders:
		return gin.H{
			"orders":     s.wb.Sheet(SheetOrders).Objects(),
			"items":      s.wb.Sheet(SheetOrderItems).Objects(),
			"updated_at": stamp,
		}, nil
	case sheetapi.ActionHealth:
		return gin.H{"updated_at": stamp}, nil
	case "":
		return nil, fmt.Errorf("missing action")
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

func (s *Server) write(c *gin.Context, action string) (gin.H, error) {
	var (
		out gin.H
		err error
	)
	s.mu.Lock()
	switch action {
	case sheetapi.ActionSubmitOrder:
		var req submitRequest
		if err = c.ShouldBindJSON(&req); err == nil {
			out, err = s.submitLocked(req)
		}
	case sheetapi.ActionUpdateOrderStatus:
		var req orderStatusRequest
		if err = c.ShouldBindJSON(&req); err == nil {
			err = s.setOrderStatusLocked(req)
			out = gin.H{}
		}
	case sheetapi.ActionUpdateOrderItemStatus:
		var req itemStatusRequest
		if err = c.ShouldBindJSON(&req); err == nil {
			err = s.setItemStatusLocked(req)
			out = gin.H{}
		}
	default:
		err = fmt.Errorf("unknown action %q", action)
	}
	if err == nil {
		s.updatedAt = s.now().UTC()
		out["updated_at"] = s.updatedAt.Format(time.RFC3339Nano)
	}
	var saveErr error
	if err == nil && s.savePath != "" {
		saveErr = s.wb.SaveXLSX(s.savePath)
	}
	s.mu.Unlock()

	if saveErr != nil {
		s.logf("[sheet] save %s: %v", s.savePath, saveErr)
	}
	return out, err
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func newRequestID() string {
	return "req_" + uuid.NewString()[:8]
}
