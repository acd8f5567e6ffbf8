// Package monitorapi implements the MonitorService HTTP surface: the
// endpoints that ingest live-monitoring log windows, compare a candidate
// version's error rates against reference versions, and surface error-def
// and anomaly queries.
package monitorapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"errormonitor/internal/anomalystats"
	"errormonitor/internal/apperrors"
	"errormonitor/internal/baseline"
	"errormonitor/internal/grouping"
	"errormonitor/internal/models"
	"errormonitor/internal/occurrence"
	"errormonitor/internal/response"
	"errormonitor/internal/seasonal"
	"errormonitor/internal/store"
	"errormonitor/internal/summary"
	"errormonitor/internal/types"
)

// defaultElevatedProbability is the significance threshold used when
// DetectionConfig.ElevatedProbability is unset.
const defaultElevatedProbability = 0.9995

// defaultSeasonalScore is the anomaly threshold used when
// DetectionConfig.SeasonalAnomalyScore is unset.
const defaultSeasonalScore = -10

// monitoredStatus is the only status the OK-drop anomaly detector
// inspects.
const monitoredStatus = 200

// Handler wires the monitor service's HTTP endpoints to the underlying
// recorder, grouper, stats and summary components.
type Handler struct {
	store     store.Store
	grouper   *grouping.Grouper
	recorder  *occurrence.Recorder
	stats     *anomalystats.Stats
	builder   *summary.Builder
	detection types.DetectionConfig
	log       *logrus.Entry
}

// New builds a Handler.
func New(s store.Store, g *grouping.Grouper, r *occurrence.Recorder, stats *anomalystats.Stats, b *summary.Builder, detection types.DetectionConfig, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{store: s, grouper: g, recorder: r, stats: stats, builder: b, detection: detection, log: log}
}

// Register attaches every monitor-service route to router.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/monitor", h.PostMonitor)
	router.GET("/errors/:version/monitor/:minute", h.GetMonitorResults)
	router.GET("/error/:key", h.GetError)
	router.GET("/recent_errors", h.GetRecentErrors)
	router.GET("/version_errors/:version", h.GetVersionErrors)
	router.GET("/anomalies/:log_hour", h.GetAnomalies)
	router.GET("/ping", h.Ping)
}

// PostMonitor implements POST /monitor: it records one minute's worth of
// monitoring log lines against version.
func (h *Handler) PostMonitor(c *gin.Context) {
	var req models.MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrInvalidJSON.WithMessage(err.Error()))
		return
	}
	if req.Version == "" || req.Logs == nil {
		response.Error(c, apperrors.ErrValidation.WithMessage("version and logs are required"))
		return
	}

	for _, entry := range req.Logs {
		if _, err := h.recorder.RecordDuringMonitoring(
			req.Version, req.Minute, entry.Status, entry.Level, entry.Resource, entry.IP, entry.Route, entry.ModuleID, entry.Message,
		); err != nil {
			h.log.WithError(err).Error("monitorapi: recording monitoring occurrence failed")
			response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
			return
		}
	}

	c.String(http.StatusOK, "OK")
}

// GetMonitorResults implements GET /errors/{version}/monitor/{minute}: it
// compares version's error counts for minute against the same minute of
// every (data-present) verify_versions entry, and reports which errors are
// statistically significant.
func (h *Handler) GetMonitorResults(c *gin.Context) {
	version := c.Param("version")
	minute, err := strconv.Atoi(c.Param("minute"))
	if err != nil {
		response.Error(c, apperrors.ErrValidation.WithMessage("minute must be an integer"))
		return
	}

	rawVersions := c.Query("verify_versions")
	if strings.TrimSpace(rawVersions) == "" {
		response.Error(c, apperrors.ErrValidation.WithMessage("verify_versions is required"))
		return
	}
	requested := strings.Split(rawVersions, ",")

	var verify []string
	for _, v := range requested {
		received, err := h.recorder.MonitoringDataReceived(v, minute)
		if err != nil {
			response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
			return
		}
		if received {
			verify = append(verify, v)
		} else {
			h.log.WithFields(logrus.Fields{"version": v, "minute": minute}).Warn("monitorapi: ignoring verify_versions entry with no data for this minute")
		}
	}

	referenceCounts := make(map[string]map[string]int64, len(verify))
	for _, v := range verify {
		counts, err := h.recorder.MonitoringErrorCounts(v, minute)
		if err != nil {
			response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
			return
		}
		byKey := make(map[string]int64, len(counts))
		for _, ec := range counts {
			byKey[ec.Key] = ec.Count
		}
		referenceCounts[v] = byKey
	}

	candidates, err := h.recorder.MonitoringErrorCounts(version, minute)
	if err != nil {
		response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
		return
	}

	threshold := h.detection.ElevatedProbability
	if threshold <= 0 {
		threshold = defaultElevatedProbability
	}

	var significant []models.MonitorError
	for _, candidate := range candidates {
		if candidate.Count == 1 {
			continue // a single occurrence is too noisy to act on
		}

		historical := make([]int64, 0, len(verify))
		for _, v := range verify {
			historical = append(historical, referenceCounts[v][candidate.Key])
		}

		expected, probability := baseline.Analyze(historical, candidate.Count)
		if probability < threshold {
			continue
		}

		if candidate.Count < 5 {
			seenBefore, err := h.everSeenUnderAnyReference(candidate.Key, requested)
			if err != nil {
				response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
				return
			}
			if seenBefore {
				continue
			}
		}

		def, ok, err := h.grouper.LoadDefinition(candidate.Key)
		if err != nil {
			response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
			return
		}
		if !ok {
			continue
		}

		significant = append(significant, models.MonitorError{
			Key:           candidate.Key,
			Status:        def.Status,
			Level:         def.LevelReadable(),
			Message:       def.Title,
			Minute:        minute,
			MonitorCount:  candidate.Count,
			ExpectedCount: expected,
			Probability:   probability,
		})
	}

	c.JSON(http.StatusOK, gin.H{"errors": significant})
}

// everSeenUnderAnyReference reports whether errorKey has ever been recorded
// (plain or MON_-prefixed) under any of references.
func (h *Handler) everSeenUnderAnyReference(errorKey string, references []string) (bool, error) {
	for _, v := range references {
		for _, candidate := range []string{v, "MON_" + v} {
			_, ok, err := h.store.ZScore(errorKey+":versions", candidate)
			if err != nil {
				return false, fmt.Errorf("monitorapi: store unavailable: %w", err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// GetError implements GET /error/{key}.
func (h *Handler) GetError(c *gin.Context) {
	key := c.Param("key")
	summaryInfo, ok, err := h.builder.ErrorSummary(key)
	if err != nil {
		response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
		return
	}
	if !ok {
		response.Error(c, apperrors.ErrErrorNotFound)
		return
	}
	c.JSON(http.StatusOK, summaryInfo)
}

// GetRecentErrors implements GET /recent_errors.
func (h *Handler) GetRecentErrors(c *gin.Context) {
	errors, err := h.builder.RecentErrors()
	if err != nil {
		response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errors})
}

// GetVersionErrors implements GET /version_errors/{version}.
func (h *Handler) GetVersionErrors(c *gin.Context) {
	errors, err := h.builder.VersionErrors(c.Param("version"))
	if err != nil {
		response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errors})
}

// GetAnomalies implements GET /anomalies/{log_hour}: for every route ever
// seen, it runs the seasonal detector against the 200-response series up to
// and including log_hour and reports routes whose volume dropped further
// than the configured threshold.
func (h *Handler) GetAnomalies(c *gin.Context) {
	logHour := c.Param("log_hour")

	period := h.detection.SeasonalPeriod
	if period <= 0 {
		period = seasonal.DefaultPeriod
	}
	threshold := h.detection.SeasonalAnomalyScore
	if threshold == 0 {
		threshold = defaultSeasonalScore
	}

	routes, err := h.stats.SeenRoutes()
	if err != nil {
		response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
		return
	}
	sort.Strings(routes)

	var anomalies []models.Anomaly
	for _, route := range routes {
		hours, counts, err := h.stats.GetHourlySeries(route, monitoredStatus)
		if err != nil {
			response.Error(c, apperrors.ErrStoreUnavailable.WithMessage(err.Error()))
			return
		}

		cut := -1
		for i, hr := range hours {
			if hr == logHour {
				cut = i
				break
			}
		}
		if cut < 0 {
			continue
		}

		anomalous, score := seasonal.Detect(counts[:cut+1], period, threshold)
		if !anomalous {
			continue
		}
		anomalies = append(anomalies, models.Anomaly{
			Route:        route,
			Status:       monitoredStatus,
			Count:        counts[cut],
			AnomalyScore: score,
		})
	}

	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

// Ping implements GET /ping: a cheap store round trip used as a liveness
// probe.
func (h *Handler) Ping(c *gin.Context) {
	if _, err := h.store.Exists("__ping__"); err != nil {
		c.String(http.StatusInternalServerError, "ERROR cannot connect to store: %s", err.Error())
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte("pong"))
}
