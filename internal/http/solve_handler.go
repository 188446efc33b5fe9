package http

import (
	"errors"
	"io"
	"math/big"
	"math/rand/v2"
	gohttp "net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/batch-solver/internal/adapters/persistence"
	"github.com/hxuan190/batch-solver/internal/aggregator"
	"github.com/hxuan190/batch-solver/internal/codec"
	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/domain"
	"github.com/hxuan190/batch-solver/internal/http/httputil"
	"github.com/hxuan190/batch-solver/internal/metrics"
)

// maxProblemBytes bounds the request body of a solve call.
const maxProblemBytes = 8 << 20

type SolveHandler struct {
	aggregatorSvc *aggregator.Service
	cache         *lru.Cache[uint64, *SolveResponse]
	// archive is nil when archiving is disabled.
	archive *persistence.SolutionArchive
}

func NewSolveHandler(aggregatorSvc *aggregator.Service, cacheSize int, archive *persistence.SolutionArchive) (*SolveHandler, error) {
	cache, err := lru.New[uint64, *SolveResponse](cacheSize)
	if err != nil {
		return nil, err
	}
	return &SolveHandler{
		aggregatorSvc: aggregatorSvc,
		cache:         cache,
		archive:       archive,
	}, nil
}

func (h *SolveHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("/token-pair", h.solveTokenPair)
	pub.POST("/best-pair", h.solveBestPair)
	pub.GET("/solutions", h.listSolutions)
	pub.GET("/solutions/:id", h.getSolution)
}

func (h *SolveHandler) Root() string {
	return "/solve"
}

// TokenPairRequest names the pair to clear. The problem instance is the
// request body.
type TokenPairRequest struct {
	// Token bought by the B-orders; its price over the S token is the clearing rate
	BuyToken string `form:"b" binding:"required" example:"F"`

	// Token bought by the S-orders
	SellToken string `form:"s" binding:"required" example:"Y"`

	// Optional fixed clearing rate p(B)/p(S), as "p/q" or a decimal
	XRate string `form:"xrate" example:"1000/999"`
}

// BestPairRequest tunes a search over every eligible pair. The problem
// instance is the request body.
type BestPairRequest struct {
	// Search time limit as a Go duration; empty uses the server default
	TimeLimit string `form:"timeLimit" example:"2s"`

	// Seed for the pair visit order; 0 uses the server default
	Seed uint64 `form:"seed" example:"7"`
}

// ListSolutionsRequest bounds the archive listing.
type ListSolutionsRequest struct {
	// Maximum number of records returned, newest first; 0 returns all
	Limit int `form:"limit" binding:"min=0" example:"20"`
}

// SolutionList summarizes archived runs. Solution bodies are omitted.
type SolutionList struct {
	// Number of archived runs, regardless of limit
	Total int `json:"total" example:"42"`

	Solutions []*persistence.ArchivedSolution `json:"solutions"`
}

// SolveResponse carries the solution file of one run.
type SolveResponse struct {
	// Run identifier, also the archive key
	RunID string `json:"runId" example:"5b0c2f3e-8a4d-4f57-9c55-0b7c1f6f7a11"`

	// True when the response was served from the solution cache
	Cached bool `json:"cached" example:"false"`

	Solution *codec.SolutionFile `json:"solution"`
}

// @Summary Solve a single token pair
// @Tags solve
// @Accept json
// @Produce json
// @Param b query string true "Token bought by B-orders"
// @Param s query string true "Token bought by S-orders"
// @Param xrate query string false "Fixed clearing rate p(B)/p(S)"
// @Success 200 {object} httputil.Response{data=SolveResponse}
// @Failure 400 {object} httputil.Response
// @Router /api/v1/solve/token-pair [post]
func (h *SolveHandler) solveTokenPair(c *gin.Context) {
	var req TokenPairRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	pair := domain.TokenPair{B: domain.TokenID(req.BuyToken), S: domain.TokenID(req.SellToken)}
	if pair.B == pair.S {
		httputil.HandleBadRequest(c, "token pair must name two distinct tokens")
		return
	}

	var xrate *big.Rat
	if req.XRate != "" {
		r, err := codec.ParseXRate(req.XRate)
		if err != nil {
			httputil.HandleBadRequest(c, err.Error())
			return
		}
		xrate = r
	}

	body, inst, ok := h.readProblem(c)
	if !ok {
		return
	}

	key := cacheKey("token_pair", c.Request.URL.RawQuery, body)
	if h.serveCached(c, key) {
		return
	}

	sol, err := h.aggregatorSvc.SolveTokenPair(c.Request.Context(), inst.Problem, pair, xrate)
	if err != nil {
		log.Error().Err(err).Str("pair", pair.String()).Msg("[solveHandler] token pair solve failed")
		httputil.HandleHttpError(c, common.HTTPErrorSolverFailure(err))
		return
	}
	h.respond(c, key, "token_pair", inst, sol)
}

// @Summary Search every eligible token pair and return the best solution
// @Tags solve
// @Accept json
// @Produce json
// @Param timeLimit query string false "Search time limit, e.g. 2s"
// @Param seed query int false "Seed for the pair visit order"
// @Success 200 {object} httputil.Response{data=SolveResponse}
// @Failure 400 {object} httputil.Response
// @Router /api/v1/solve/best-pair [post]
func (h *SolveHandler) solveBestPair(c *gin.Context) {
	var req BestPairRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	opts := h.aggregatorSvc.DefaultOptions()
	if req.TimeLimit != "" {
		limit, err := time.ParseDuration(req.TimeLimit)
		if err != nil || limit < 0 {
			httputil.HandleBadRequest(c, "invalid timeLimit: must be a non-negative duration")
			return
		}
		opts.TimeLimit = limit
	}
	if req.Seed != 0 {
		opts.Rand = rand.New(rand.NewPCG(req.Seed, req.Seed))
	}

	body, inst, ok := h.readProblem(c)
	if !ok {
		return
	}

	key := cacheKey("best_pair", c.Request.URL.RawQuery, body)
	if h.serveCached(c, key) {
		return
	}

	sol, err := h.aggregatorSvc.SolveBestPair(c.Request.Context(), inst.Problem, opts)
	if err != nil {
		log.Error().Err(err).Msg("[solveHandler] best pair search failed")
		httputil.HandleHttpError(c, common.HTTPErrorSolverFailure(err))
		return
	}
	h.respond(c, key, "best_pair", inst, sol)
}

// @Summary List archived solutions, newest first
// @Tags solve
// @Produce json
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} httputil.Response{data=SolutionList}
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response
// @Router /api/v1/solve/solutions [get]
func (h *SolveHandler) listSolutions(c *gin.Context) {
	if h.archive == nil {
		httputil.HandleNotFound(c, "solution archive is disabled")
		return
	}
	var req ListSolutionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	total, err := h.archive.Count()
	if err != nil {
		httputil.HandleInternalError(c, "failed to count solutions")
		return
	}
	recs, err := h.archive.List()
	if err != nil {
		httputil.HandleInternalError(c, "failed to list solutions")
		return
	}
	if req.Limit > 0 && len(recs) > req.Limit {
		recs = recs[:req.Limit]
	}
	for _, rec := range recs {
		rec.Solution = nil
	}
	httputil.HandleSuccess(c, SolutionList{Total: total, Solutions: recs})
}

// @Summary Fetch an archived solution by run identifier
// @Tags solve
// @Produce json
// @Param id path string true "Run identifier"
// @Success 200 {object} httputil.Response
// @Failure 404 {object} httputil.Response
// @Router /api/v1/solve/solutions/{id} [get]
func (h *SolveHandler) getSolution(c *gin.Context) {
	if h.archive == nil {
		httputil.HandleNotFound(c, "solution archive is disabled")
		return
	}
	rec, err := h.archive.Load(c.Param("id"))
	if errors.Is(err, persistence.ErrSolutionNotFound) {
		httputil.HandleHttpError(c, common.HTTPErrorNotFound(""))
		return
	}
	if err != nil {
		httputil.HandleHttpError(c, common.HTTPErrorInternalError("failed to load solution"))
		return
	}
	httputil.HandleSuccess(c, rec)
}

func (h *SolveHandler) readProblem(c *gin.Context) ([]byte, *codec.Instance, bool) {
	body, err := io.ReadAll(gohttp.MaxBytesReader(c.Writer, c.Request.Body, maxProblemBytes))
	if err != nil {
		httputil.HandleBadRequest(c, "failed to read problem: "+err.Error())
		return nil, nil, false
	}
	inst, err := codec.DecodeProblem(body, h.aggregatorSvc.Config().MinTradable())
	if err != nil {
		httputil.HandleHttpError(c, common.HTTPErrorBadRequest(err.Error()))
		return nil, nil, false
	}
	return body, inst, true
}

func (h *SolveHandler) serveCached(c *gin.Context, key uint64) bool {
	resp, ok := h.cache.Get(key)
	if !ok {
		metrics.SolutionCacheMisses.Inc()
		return false
	}
	metrics.SolutionCacheHits.Inc()
	cached := *resp
	cached.Cached = true
	httputil.HandleSuccess(c, cached)
	return true
}

func (h *SolveHandler) respond(c *gin.Context, key uint64, mode string, inst *codec.Instance, sol *domain.Solution) {
	file, err := codec.BuildSolution(inst, sol)
	if err != nil {
		log.Error().Err(err).Str("run_id", sol.RunID).Msg("[solveHandler] failed to build solution file")
		httputil.HandleInternalError(c, "failed to encode solution")
		return
	}
	resp := &SolveResponse{RunID: sol.RunID, Solution: file}

	// Time-limited results depend on timing and are not reused.
	if sol.Status == domain.StatusCompleted {
		h.cache.Add(key, resp)
		metrics.SolutionCacheSize.Set(float64(h.cache.Len()))
	}
	h.archiveSolution(mode, sol, file)

	httputil.HandleSuccess(c, resp)
}

func (h *SolveHandler) archiveSolution(mode string, sol *domain.Solution, file *codec.SolutionFile) {
	if h.archive == nil {
		return
	}
	data, err := sonic.Marshal(file)
	if err == nil {
		rec := &persistence.ArchivedSolution{
			RunID:     sol.RunID,
			Mode:      mode,
			Status:    string(sol.Status),
			Score:     sol.Score.String(),
			CreatedAt: time.Now().UTC(),
			Solution:  data,
		}
		if sol.TokenPair != nil {
			rec.TokenPair = sol.TokenPair.String()
		}
		err = h.archive.Save(rec)
	}
	if err != nil {
		metrics.ArchiveFailures.Inc()
		log.Error().Err(err).Str("run_id", sol.RunID).Msg("[solveHandler] failed to archive solution")
		return
	}
	metrics.ArchivedSolutions.Inc()
}

func cacheKey(mode, query string, body []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(mode)
	_, _ = d.WriteString("?" + query + "\n")
	_, _ = d.Write(body)
	return d.Sum64()
}
