package server

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/gameforge/internal/chat"
	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/fence"
)

func (s *Server) requireCoins(c *gin.Context) {
	if s.opts.Coins == nil {
		errorJSON(c, http.StatusServiceUnavailable, errors.New("coin ledger is disabled"))
		return
	}
	c.Next()
}

type coinView struct {
	coin.Game
	TotalSupply string `json:"totalSupply"`
	MaxSupply   string `json:"maxSupply"`
}

func viewOfCoin(m coin.Metadata) coinView {
	return coinView{
		Game:        m.Game,
		TotalSupply: coin.FormatAmount(m.TotalSupply),
		MaxSupply:   coin.FormatAmount(m.MaxSupply),
	}
}

func gameID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		errorJSON(c, http.StatusBadRequest, errors.New("invalid game id"))
		return 0, false
	}
	return id, true
}

// titleOf names the app of a message: its file name in title case, or the
// chat title.
func titleOf(ch *chat.Chat, msg chat.Message) string {
	if block, ok := fence.ExtractFirstCodeBlock(msg.Content); ok && block.Filename.Name != "" {
		return fence.TitleCase(block.Filename.Name)
	}
	return ch.Title
}

// coinDraft pre-fills the coin form for the app of a message.
func (s *Server) coinDraft(c *gin.Context) {
	ch, msg, err := s.opts.Chats.FindMessage(c.Param("messageId"))
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, coin.DraftFromTitle(titleOf(ch, msg)))
}

type createCoinRequest struct {
	Creator string `json:"creator" binding:"required"`
	coin.Draft
}

func (s *Server) createCoin(c *gin.Context) {
	var req createCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	g, err := s.opts.Coins.CreateGameToken(c.Request.Context(), req.Creator, req.Draft)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	m, err := s.opts.Coins.GameMetadata(c.Request.Context(), g.ID)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusCreated, viewOfCoin(m))
}

func (s *Server) listCoins(c *gin.Context) {
	games, err := s.opts.Coins.Games(c.Request.Context())
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	total := len(games)
	if games == nil {
		games = []coin.Game{}
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "games": games})
}

func (s *Server) getCoin(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	m, err := s.opts.Coins.GameMetadata(c.Request.Context(), id)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, viewOfCoin(m))
}

func (s *Server) coinEvents(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	if _, err := s.opts.Coins.Game(c.Request.Context(), id); err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	events, err := s.opts.Coins.Events(c.Request.Context(), id)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		out = append(out, gin.H{
			"kind":      e.Kind,
			"from":      e.From,
			"to":        e.To,
			"amount":    coin.FormatAmount(e.Amount),
			"reason":    e.Reason,
			"createdAt": e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) coinBalance(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	bal, err := s.opts.Coins.BalanceOf(c.Request.Context(), id, c.Param("address"))
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "balance": coin.FormatAmount(bal)})
}

func (s *Server) walletCoins(c *gin.Context) {
	games, err := s.opts.Coins.GamesByCreator(c.Request.Context(), c.Param("address"))
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	if games == nil {
		games = []coin.Game{}
	}
	c.JSON(http.StatusOK, games)
}

// supplyRequest moves tokens. Amount is in whole tokens, e.g. "1000" or
// "0.5".
type supplyRequest struct {
	Caller string `json:"caller"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

func bindSupply(c *gin.Context) (int64, supplyRequest, *big.Int, bool) {
	id, ok := gameID(c)
	if !ok {
		return 0, supplyRequest{}, nil, false
	}
	var req supplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return 0, req, nil, false
	}
	amount, err := coin.ParseAmount(req.Amount)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return 0, req, nil, false
	}
	return id, req, amount, true
}

func (s *Server) mintCoin(c *gin.Context) {
	id, req, amount, ok := bindSupply(c)
	if !ok {
		return
	}
	if err := s.opts.Coins.Mint(c.Request.Context(), req.Caller, id, req.To, amount, req.Reason); err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	s.getCoin(c)
}

func (s *Server) burnCoin(c *gin.Context) {
	id, req, amount, ok := bindSupply(c)
	if !ok {
		return
	}
	if err := s.opts.Coins.Burn(c.Request.Context(), req.Caller, id, req.From, amount, req.Reason); err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	s.getCoin(c)
}

func (s *Server) transferCoin(c *gin.Context) {
	id, req, amount, ok := bindSupply(c)
	if !ok {
		return
	}
	if err := s.opts.Coins.Transfer(c.Request.Context(), id, req.From, req.To, amount); err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	s.getCoin(c)
}
