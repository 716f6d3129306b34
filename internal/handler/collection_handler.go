package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/domain/service"
	"HexCollector-App/internal/usecase"
)

const (
	defaultNearbyRadius = 1000.0
	maxNearbyRadius     = 50000.0
	defaultNearbyLimit  = 50
)

// CollectionHandler は収集APIのハンドラー
type CollectionHandler struct {
	collectionUseCase usecase.CollectionUseCase
}

// NewCollectionHandler は新しいCollectionHandlerインスタンスを作成
func NewCollectionHandler(collectionUseCase usecase.CollectionUseCase) *CollectionHandler {
	return &CollectionHandler{collectionUseCase: collectionUseCase}
}

// RegisterRoutes はルーティングを登録する
func (h *CollectionHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/collections", h.PostCollections)
	r.POST("/collections/sync", h.PostCollectionsSync)
	r.GET("/collections/progress", h.GetProgress)
	r.GET("/collections/stats", h.GetStats)
	r.GET("/collections/latest", h.GetLatest)
	r.GET("/places", h.GetNearbyPlaces)
}

// PostCollections は収集を開始するエンドポイント
// wait=true の場合は完了まで待って集計結果を返し、それ以外はバックグラウンドで開始する
// POST /collections
func (h *CollectionHandler) PostCollections(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	if !req.Wait {
		h.startAsync(c, req)
		return
	}

	aggregate, err := h.collectionUseCase.StartCollection(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, aggregate)
}

// PostCollectionsSync は収集をバックグラウンドで開始してすぐに返すエンドポイント
// POST /collections/sync
func (h *CollectionHandler) PostCollectionsSync(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	h.startAsync(c, req)
}

// GetProgress は現在のランの進捗を返す
// GET /collections/progress
func (h *CollectionHandler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.collectionUseCase.Progress())
}

// GetStats はレートガバナーの統計を返す
// GET /collections/stats
func (h *CollectionHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.collectionUseCase.Stats())
}

// GetLatest は最新の集計メタデータを返す。include_results=true の場合は結果本体も含める
// GET /collections/latest
func (h *CollectionHandler) GetLatest(c *gin.Context) {
	aggregate, err := h.collectionUseCase.LatestAggregate(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	if c.Query("include_results") == "true" {
		c.JSON(http.StatusOK, aggregate)
		return
	}
	c.JSON(http.StatusOK, aggregate.Summary())
}

// GetNearbyPlaces は最新の収集結果から周辺スポットを返す
// GET /places?lat=..&lng=..&radius=..&limit=..
func (h *CollectionHandler) GetNearbyPlaces(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		h.badRequest(c, "latは-90から90の数値で指定してください")
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		h.badRequest(c, "lngは-180から180の数値で指定してください")
		return
	}

	radius := defaultNearbyRadius
	if v := c.Query("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 || radius > maxNearbyRadius {
			h.badRequest(c, "radiusは0より大きく50000以下で指定してください")
			return
		}
	}

	limit := defaultNearbyLimit
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			h.badRequest(c, "limitは1以上の整数で指定してください")
			return
		}
	}

	response, err := h.collectionUseCase.NearbyPlaces(c.Request.Context(), model.LatLng{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *CollectionHandler) bindRequest(c *gin.Context) (*model.StartCollectionRequest, bool) {
	var req model.StartCollectionRequest

	// ボディ無しの場合は設定のデフォルトで実行する
	if c.Request.ContentLength == 0 {
		return &req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return nil, false
	}
	return &req, true
}

func (h *CollectionHandler) startAsync(c *gin.Context, req *model.StartCollectionRequest) {
	response, err := h.collectionUseCase.StartCollectionAsync(req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response)
}

func (h *CollectionHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}

// respondError はエラーの種類に応じたステータスコードで返す
func (h *CollectionHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCollectionRunning):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "collection_running",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidResolution), errors.Is(err, usecase.ErrInvalidRequest):
		h.badRequest(c, err.Error())
	case errors.Is(err, repository.ErrAggregateNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "collection_failed",
			"message": err.Error(),
		})
	}
}
