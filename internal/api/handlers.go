package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/celltx-risk-engine/internal/accrual"
	"github.com/celltx-risk-engine/internal/bayes"
	"github.com/celltx-risk-engine/internal/cache"
	"github.com/celltx-risk-engine/internal/domain"
	"github.com/celltx-risk-engine/internal/mitigation"
)

// respondError writes the coded error envelope with the request's
// correlation ID.
func respondError(c *gin.Context, status int, code, message, details string) {
	c.JSON(status, domain.NewAPIError(code, message, details, c.GetString("correlation_id")))
}

// scoreRequest carries one lab snapshot keyed by canonical biomarker name.
type scoreRequest struct {
	Labs map[string]domain.LabValue `json:"labs" binding:"required"`
}

// handleScore runs the full calculator ensemble over one snapshot.
func (s *Server) handleScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err.Error())
		return
	}

	labs := make(domain.LabSnapshot, len(req.Labs))
	for marker, value := range req.Labs {
		labs[domain.Biomarker(marker)] = value
	}

	key := cache.SnapshotKey(labs, EngineVersion)
	if s.results != nil {
		if cached, ok, _ := s.results.Get(c.Request.Context(), key); ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	result, err := s.orchestrator.Score(labs)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrCodeInvalidInput, "snapshot rejected", err.Error())
		return
	}

	// Nothing could run: report which fields each model needed instead of
	// pretending an empty ensemble is an assessment.
	if result.ModelsRun == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": domain.NewAPIError(domain.ErrCodeMissingInput,
				"no calculator could run on this snapshot",
				"see layers[].models_skipped for the missing fields per model",
				c.GetString("correlation_id")),
			"result": result,
		})
		return
	}

	if s.results != nil {
		_ = s.results.Set(c.Request.Context(), key, result)
	}
	c.JSON(http.StatusOK, result)
}

// handleListConditions lists the monitored conditions with their priors.
func (s *Server) handleListConditions(c *gin.Context) {
	var conditions []bayes.Condition
	for _, id := range s.conditions.IDs() {
		cond, err := s.conditions.Get(id)
		if err != nil {
			continue
		}
		conditions = append(conditions, cond)
	}
	c.JSON(http.StatusOK, gin.H{"conditions": conditions})
}

// accrueRequest is one newly observed cohort.
type accrueRequest struct {
	CohortID string `json:"cohort_id" binding:"required"`
	Events   int    `json:"events"`
	N        int    `json:"n" binding:"required"`
	Source   string `json:"source"`
}

// handleAccrue appends one cohort to a condition's evidence and returns the
// updated posterior.
func (s *Server) handleAccrue(c *gin.Context) {
	cond, ok := s.lookupCondition(c)
	if !ok {
		return
	}

	var req accrueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err.Error())
		return
	}

	cohort := domain.Cohort{ID: req.CohortID, Events: req.Events, N: req.N, Source: req.Source}
	if err := cohort.Validate(); err != nil {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrCodeInvalidRange, "invalid cohort", err.Error())
		return
	}

	records, err := s.store.History(c.Request.Context(), cond.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeStorage, "failed to load accrual history", err.Error())
		return
	}

	estimate, err := s.engine.Accrue(cond.Prior, accrual.Histories(records), cohort)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrCodePriorSpec, "accrual rejected", err.Error())
		return
	}

	record := accrual.NewRecord(cond.ID, cohort, *estimate)
	if err := s.store.Append(c.Request.Context(), record); err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeStorage, "failed to persist accrual record", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"condition_id": cond.ID,
		"record_id":    record.ID,
		"estimate":     estimate,
	})
}

// handleHistory returns the full accrual history of a condition.
func (s *Server) handleHistory(c *gin.Context) {
	cond, ok := s.lookupCondition(c)
	if !ok {
		return
	}

	records, err := s.store.History(c.Request.Context(), cond.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeStorage, "failed to load accrual history", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"condition_id": cond.ID,
		"prior":        cond.Prior,
		"records":      records,
	})
}

// handleMonitor answers a sequential-monitoring query for a condition.
// threshold and boundary default to the condition's pre-specified values.
func (s *Server) handleMonitor(c *gin.Context) {
	cond, ok := s.lookupCondition(c)
	if !ok {
		return
	}

	threshold := cond.MonitorThreshold
	boundary := cond.StoppingBoundary
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid threshold", err.Error())
			return
		}
		threshold = v
	}
	if raw := c.Query("boundary"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid boundary", err.Error())
			return
		}
		boundary = v
	}

	estimate, err := s.currentEstimate(c, cond)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeStorage, "failed to load current estimate", err.Error())
		return
	}

	result, err := s.engine.Monitor(*estimate, threshold, boundary)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrCodeInvalidRange, "monitoring query rejected", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"condition_id": cond.ID,
		"estimate":     estimate,
		"monitor":      result,
	})
}

// handleSensitivity replays a condition's accrued cohorts under the
// configured discount grid, showing how sensitive the final posterior is to
// the prior-discount choice.
func (s *Server) handleSensitivity(c *gin.Context) {
	cond, ok := s.lookupCondition(c)
	if !ok {
		return
	}

	records, err := s.store.History(c.Request.Context(), cond.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeStorage, "failed to load accrual history", err.Error())
		return
	}
	if len(records) == 0 {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrCodeMissingInput,
			"no accrued evidence for condition", "sensitivity analysis requires at least one accrued cohort")
		return
	}

	sweep := s.config.Engine
	discounts, err := bayes.SweepDiscounts(sweep.DiscountSweepMin, sweep.DiscountSweepMax, sweep.DiscountSweepSteps)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeInternal, "invalid discount sweep configuration", err.Error())
		return
	}

	band, err := s.engine.SensitivityBand(cond.BaseRate, cond.EffectiveN, discounts, accrual.Cohorts(records))
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrCodePriorSpec, "sensitivity analysis rejected", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"condition_id": cond.ID,
		"base_rate":    cond.BaseRate,
		"effective_n":  cond.EffectiveN,
		"band":         band,
	})
}

// projectRequest asks for a mitigated-risk projection against a condition's
// current posterior.
type projectRequest struct {
	ConditionID    string                  `json:"condition_id" binding:"required"`
	Mitigations    []domain.MitigationSpec `json:"mitigations" binding:"required"`
	Samples        int                     `json:"samples"`
	Seed           uint64                  `json:"seed"`
	Method         string                  `json:"method"`
	TailThresholds []float64               `json:"tail_thresholds"`
}

// handleMitigationProject runs the Monte Carlo mitigation combiner.
func (s *Server) handleMitigationProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err.Error())
		return
	}

	cond, err := s.conditions.Get(req.ConditionID)
	if err != nil {
		respondError(c, http.StatusNotFound, domain.ErrCodeInvalidInput, "unknown condition", err.Error())
		return
	}

	baseline, err := s.currentEstimate(c, cond)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrCodeStorage, "failed to load baseline estimate", err.Error())
		return
	}

	result, err := s.combiner.Project(mitigation.Request{
		ConditionID:    cond.ID,
		Baseline:       *baseline,
		Mitigations:    req.Mitigations,
		Samples:        req.Samples,
		Seed:           req.Seed,
		Method:         req.Method,
		TailThresholds: req.TailThresholds,
	})
	if err != nil {
		var combErr *domain.CombinationDomainError
		var priorErr *domain.PriorSpecificationError
		switch {
		case errors.As(err, &combErr):
			respondError(c, http.StatusUnprocessableEntity, domain.ErrCodeCombination, "projection rejected", err.Error())
		case errors.As(err, &priorErr):
			respondError(c, http.StatusUnprocessableEntity, domain.ErrCodePriorSpec, "projection rejected", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, domain.ErrCodeInternal, "projection failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// lookupCondition resolves the :id path parameter, writing the 404 itself.
func (s *Server) lookupCondition(c *gin.Context) (bayes.Condition, bool) {
	cond, err := s.conditions.Get(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, domain.ErrCodeInvalidInput, "unknown condition", err.Error())
		return bayes.Condition{}, false
	}
	return cond, true
}

// currentEstimate is the latest accrued posterior for a condition, falling
// back to the discounted prior when no evidence has accrued.
func (s *Server) currentEstimate(c *gin.Context, cond bayes.Condition) (*domain.PosteriorEstimate, error) {
	latest, err := s.store.Latest(c.Request.Context(), cond.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		estimate := latest.Estimate()
		return &estimate, nil
	}
	return bayes.PriorEstimate(cond.Prior)
}
