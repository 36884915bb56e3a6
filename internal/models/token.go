package models

import "github.com/golang-jwt/jwt/v5"

// ServiceClaims identifies an internal caller of the attempt API
type ServiceClaims struct {
	Type    string `json:"type"`
	Service string `json:"service"`
	jwt.RegisteredClaims
}
