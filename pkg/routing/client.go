package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"FarmLink/pkg/geo"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/metrics"
)

const (
	requestTimeout  = 8 * time.Second
	cacheSize       = 1024
	defaultCacheTTL = 60 * time.Second
)

// Result 路线计算结果。OK 为 false 表示本次查询失败，
// 调用方应沿用旧的 ETA，不应重试（节流由调用方负责）。
type Result struct {
	DistanceKm      float64
	DurationSeconds float64
	Polyline        string
	OK              bool
}

// Router 路线服务接口
type Router interface {
	Route(ctx context.Context, origin, dest geo.Point) Result
}

// Config 路线客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	// CacheTTL 缓存条目的存活时间，为零时取 60 秒。
	// 必须不大于调用方的节流窗口，否则窗口过后 ETA 无法刷新
	CacheTTL time.Duration
}

// Client 基于 OSRM 风格 HTTP 接口的路线客户端
type Client struct {
	config Config
	http   *http.Client
	cache  *expirable.LRU[string, Result]
}

// NewClient 创建路线客户端
func NewClient(config Config) *Client {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: requestTimeout},
		cache:  expirable.NewLRU[string, Result](cacheSize, nil, ttl),
	}
}

// osrmResponse OSRM 接口响应
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // 米
		Duration float64 `json:"duration"` // 秒
		Geometry string  `json:"geometry"` // polyline
	} `json:"routes"`
}

// Route 查询两点间驾车路线。任何失败（缺少密钥、超时、非 2xx、
// 响应解析失败）都返回 OK=false，不向调用方抛错。
func (c *Client) Route(ctx context.Context, origin, dest geo.Point) Result {
	if c.config.APIKey == "" {
		// 未配置密钥时直接短路为失败
		return Result{}
	}

	key := cacheKey(origin, dest)
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&key=%s",
		c.config.BaseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat, c.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Warn("构造路线请求失败", zap.Error(err))
		metrics.RoutingRequests.WithLabelValues("error").Inc()
		return Result{}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("路线服务请求失败", zap.Error(err))
		metrics.RoutingRequests.WithLabelValues("error").Inc()
		return Result{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("路线服务返回异常状态", zap.Int("status", resp.StatusCode))
		metrics.RoutingRequests.WithLabelValues("error").Inc()
		return Result{}
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Warn("路线响应解析失败", zap.Error(err))
		metrics.RoutingRequests.WithLabelValues("error").Inc()
		return Result{}
	}

	if body.Code != "Ok" || len(body.Routes) == 0 {
		metrics.RoutingRequests.WithLabelValues("empty").Inc()
		return Result{}
	}

	r := body.Routes[0]
	result := Result{
		DistanceKm:      r.Distance / 1000,
		DurationSeconds: r.Duration,
		Polyline:        r.Geometry,
		OK:              true,
	}

	c.cache.Add(key, result)
	metrics.RoutingRequests.WithLabelValues("ok").Inc()
	return result
}

// cacheKey 坐标按约 4 位小数取整后作为缓存键，
// 节流窗口内同一路线的重复查询不再出网
func cacheKey(origin, dest geo.Point) string {
	return fmt.Sprintf("%.4f,%.4f;%.4f,%.4f", origin.Lat, origin.Lng, dest.Lat, dest.Lng)
}
