package http

import (
	"net/http"
	"strconv"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"
	apperrors "probewatch/pkg/errors"
	"probewatch/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var _ ports.HTTPHandler = (*ProbeHandler)(nil)

type ProbeHandler struct {
	reader       ports.ConnectivityReader
	measurements ports.MeasurementProvider
	logger       *zap.SugaredLogger
}

// NewProbeHandler serves tracker state from reader. measurements may be nil,
// in which case the latest-result route answers 503.
func NewProbeHandler(
	reader ports.ConnectivityReader,
	measurements ports.MeasurementProvider,
	logger *zap.SugaredLogger,
) *ProbeHandler {
	return &ProbeHandler{
		reader:       reader,
		measurements: measurements,
		logger:       logger,
	}
}

func (h *ProbeHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/probes/:id", h.GetProbe)
		api.GET("/networks", h.ListNetworks)
		api.GET("/networks/:family/:asn", h.GetNetwork)
		api.GET("/measurements/:msm/probes/:probe/latest", h.GetLatestResult)
	}
}

func (h *ProbeHandler) GetProbe(c *gin.Context) {
	id, err := intParam(c, "id", validation.ValidateProbeID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	probe, err := h.reader.Probe(c.Request.Context(), domain.ProbeID(id))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"probe": newProbeResponse(probe),
	})
}

func (h *ProbeHandler) GetNetwork(c *gin.Context) {
	family, err := domain.ParseAddressFamily(c.Param("family"))
	if err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	asn, err := intParam(c, "asn", validation.ValidateASN)
	if err != nil {
		abortWithError(c, err)
		return
	}

	view, err := h.reader.Network(c.Request.Context(), domain.NetworkKey{Family: family, ASN: domain.ASN(asn)})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"network": newNetworkResponse(view),
	})
}

func (h *ProbeHandler) ListNetworks(c *gin.Context) {
	var filter domain.NetworkFilter

	if raw := c.Query("family"); raw != "" {
		family, err := domain.ParseAddressFamily(raw)
		if err != nil {
			abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
			return
		}
		filter.Family = family
	}
	if raw := c.Query("below"); raw != "" {
		below, err := strconv.ParseFloat(raw, 64)
		if err != nil || below < 0 || below > 100 {
			abortWithError(c, apperrors.NewInvalidInputError("below must be a percentage between 0 and 100"))
			return
		}
		filter.Below = &below
	}

	views, err := h.reader.Networks(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	networks := make([]networkResponse, 0, len(views))
	for _, v := range views {
		networks = append(networks, newNetworkResponse(v))
	}

	c.JSON(http.StatusOK, gin.H{
		"networks": networks,
		"count":    len(networks),
	})
}

func (h *ProbeHandler) GetLatestResult(c *gin.Context) {
	if h.measurements == nil {
		abortWithError(c, apperrors.NewServiceUnavailableError("measurement lookups are disabled"))
		return
	}

	msm, err := intParam(c, "msm", validation.ValidateMeasurementID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	probe, err := intParam(c, "probe", validation.ValidateProbeID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	snap, err := h.measurements.LastResult(c.Request.Context(), domain.MeasurementID(msm), domain.ProbeID(probe))
	if err != nil {
		h.logger.Warnw("latest result lookup failed", "msm_id", msm, "probe_id", probe, "error", err)
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": newSnapshotResponse(snap),
	})
}

func intParam(c *gin.Context, name string, validate func(int) error) (int, error) {
	raw := c.Param(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidInputError(name + " must be an integer").WithContext(name, raw)
	}
	if err := validate(v); err != nil {
		return 0, apperrors.NewInvalidInputError(err.Error()).WithContext(name, raw)
	}
	return v, nil
}

// abortWithError hands err to ErrorHandlerMiddleware, which writes the response.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
	c.Abort()
}
