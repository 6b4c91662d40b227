// Package nonce provides single-use replay nonces served at the nonce
// endpoint.
package nonce

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/nonceutil"
)

type Service interface {
	Get() (string, error)
	Redeem(nonceStr string) error
}

type hashicorpService struct {
	nonceService nonceutil.NonceService
}

func NewService() (Service, error) {
	nonceService := nonceutil.NewNonceService()
	if err := nonceService.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize nonce service: %w", err)
	}
	return &hashicorpService{nonceService}, nil
}

func (s *hashicorpService) Get() (string, error) {
	nonceStr, _, err := s.nonceService.Get()
	if err != nil {
		return "", err
	}
	return nonceStr, nil
}

func (s *hashicorpService) Redeem(nonceStr string) error {
	if ok := s.nonceService.Redeem(nonceStr); !ok {
		return fmt.Errorf("nonce %s not found", nonceStr)
	}
	return nil
}
