package http

import (
	"context"
	"errors"
	"fmt"
	gohttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/batch-solver/internal/adapters/persistence"
	"github.com/hxuan190/batch-solver/internal/aggregator"
	"github.com/hxuan190/batch-solver/internal/config"
	"github.com/hxuan190/batch-solver/internal/http/httputil"
	"github.com/hxuan190/batch-solver/internal/http/middlewares"
)

const (
	API_VERSION  = "v1"
	HTTP_SERVICE = "http-service"
)

type HTTPService struct {
	container.BaseDIInstance

	aggregatorSvc *aggregator.Service
	rateLimiter   *middlewares.RateLimiter
	archive       *persistence.SolutionArchive
	server        *gohttp.Server
	conf          *config.GeneralConfig

	handlers []httputil.IHttpHandler
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

// Router builds the gin engine with every route mounted.
func (svc *HTTPService) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware())

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(gohttp.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("api")
	api.Use(svc.rateLimiter.RateLimitMiddleware())
	pub := api.Group(API_VERSION)
	priv := api.Group(API_VERSION)
	admin := api.Group(fmt.Sprintf("%s/admin", API_VERSION))

	svc.setupHandlers(pub, priv, admin)
	return r
}

func (svc *HTTPService) Start() error {
	svc.server = &gohttp.Server{
		Addr:              svc.conf.HTTPHost + ":" + svc.conf.HTTPPort,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("http server started")

	if err := svc.server.ListenAndServe(); err != nil && !errors.Is(err, gohttp.ErrServerClosed) {
		return err
	}
	return nil
}

func (svc *HTTPService) Configure(c container.IContainer) error {
	conf, ok := c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	if !ok || conf == nil {
		return errors.New("invalid server config")
	}
	cacheConf, ok := c.GetConfig(config.CACHE_CONFIG_KEY).(*config.CacheConfig)
	if !ok || cacheConf == nil {
		return errors.New("invalid cache config")
	}
	archiveConf, ok := c.GetConfig(config.ARCHIVE_CONFIG_KEY).(*config.ArchiveConfig)
	if !ok || archiveConf == nil {
		return errors.New("invalid archive config")
	}
	aggregatorSvc, ok := c.Instance(aggregator.AGGREGATOR_SERVICE).(*aggregator.Service)
	if !ok {
		return errors.New("aggregator service is not registered")
	}

	var archive *persistence.SolutionArchive
	if archiveConf.Enabled {
		var err error
		archive, err = persistence.NewSolutionArchive(archiveConf.DBPath)
		if err != nil {
			return fmt.Errorf("open solution archive: %w", err)
		}
	}
	return svc.init(conf, aggregatorSvc, cacheConf.Size, archive)
}

func (svc *HTTPService) init(conf *config.GeneralConfig, aggregatorSvc *aggregator.Service, cacheSize int, archive *persistence.SolutionArchive) error {
	solveHandler, err := NewSolveHandler(aggregatorSvc, cacheSize, archive)
	if err != nil {
		return fmt.Errorf("create solve handler: %w", err)
	}
	svc.conf = conf
	svc.aggregatorSvc = aggregatorSvc
	svc.archive = archive
	svc.rateLimiter = middlewares.NewRateLimiter(conf.RateLimit, conf.RateBurst)
	svc.handlers = []httputil.IHttpHandler{solveHandler}
	return nil
}

func (svc *HTTPService) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if svc.server != nil {
		if err := svc.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("failed to stop http server")
			errs = append(errs, err)
		}
	}
	if svc.archive != nil {
		if err := svc.archive.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close solution archive")
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		log.Info().Msg("http server stopped gracefully")
	}
	return errors.Join(errs...)
}

func (svc *HTTPService) setupHandlers(
	rootPub *gin.RouterGroup,
	rootPriv *gin.RouterGroup,
	rootAdmin *gin.RouterGroup,
) {
	for _, h := range svc.handlers {
		pub := rootPub.Group(h.Root())
		priv := rootPriv.Group(h.Root())
		admin := rootAdmin.Group(h.Root())
		h.SetRoutes(pub, priv, admin)
	}
}
