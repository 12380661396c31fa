package httpservice

import (
	"errors"
	"net/http"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const nothingToSettleMsg = "no boarding outputs or vtxos can be settled at the moment"

func (s *service) createWallet(c *gin.Context) {
	walletID, err := s.appSvc.CreateWallet(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createWalletResponse{walletID})
}

func (s *service) getAddress(c *gin.Context) {
	addr, err := s.appSvc.GetAddress(c.Request.Context(), c.Param("wallet_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, getAddressResponse{
		WalletID:        addr.WalletID,
		OnchainAddress:  addr.OnchainAddress,
		OffchainAddress: addr.OffchainAddress,
	})
}

func (s *service) getBalance(c *gin.Context) {
	balance, err := s.appSvc.GetBalance(c.Request.Context(), c.Param("wallet_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, walletBalance{balance}.toResponse())
}

func (s *service) sendToArkAddress(c *gin.Context) {
	var req sendToArkAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.NewInvalidRequestError("%s", err))
		return
	}

	txid, err := s.appSvc.SendToArkAddress(c.Request.Context(), req.WalletID, req.Address, req.Amount)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sendToArkAddressResponse{
		WalletID:  req.WalletID,
		ToAddress: req.Address,
		Amount:    req.Amount,
		Txid:      txid,
	})
}

func (s *service) settle(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.NewInvalidRequestError("%s", err))
		return
	}

	result, err := s.appSvc.Settle(c.Request.Context(), req.WalletID, req.ToAddress)
	if err != nil {
		log.WithError(err).Warnf("failed to settle wallet %s", req.WalletID)
		c.AbortWithStatusJSON(errorStatus(err), settleResponse{
			WalletID: req.WalletID,
			Error:    err.Error(),
		})
		return
	}

	if result.NothingToSettle {
		c.JSON(http.StatusOK, settleResponse{
			WalletID: req.WalletID,
			Error:    nothingToSettleMsg,
		})
		return
	}

	c.JSON(http.StatusOK, settleResponse{
		WalletID: req.WalletID,
		Success:  true,
		Txid:     result.Txid,
	})
}

func (s *service) faucet(c *gin.Context) {
	var req faucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.NewInvalidRequestError("%s", err))
		return
	}

	resp := faucetResponse{
		Address: req.OnchainAddress,
		Amount:  req.Amount,
	}

	result, err := s.appSvc.Faucet(c.Request.Context(), req.OnchainAddress, req.Amount)
	if result != nil {
		resp.Txid = result.Txid
		resp.Output = result.Output
	}
	if err != nil {
		resp.Error = err.Error()
		c.AbortWithStatusJSON(errorStatus(err), resp)
		return
	}

	resp.Success = true
	c.JSON(http.StatusOK, resp)
}

func (s *service) getHistory(c *gin.Context) {
	history, err := s.appSvc.GetHistory(c.Request.Context(), c.Param("wallet_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlementList(history).toResponse())
}

func (s *service) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, serverInfo(s.appSvc.GetInfo(c.Request.Context())).toResponse())
}

func abortWithError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Errorf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
	c.AbortWithStatusJSON(status, errorResponse{err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrBelowDustThreshold),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
