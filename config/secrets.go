package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/alejandrodnm/updown/internal/domain"
)

// Secrets son las credenciales de la wallet. Solo vienen del entorno
// (o del .env que carga Load), nunca del YAML.
type Secrets struct {
	PrivateKey    string `env:"POLY_PRIVATE_KEY"`
	FunderAddress string `env:"POLY_FUNDER_ADDRESS"` // Safe que custodia el colateral; vacío = la EOA
	PolygonRPC    string `env:"POLYGON_RPC_URL" envDefault:"https://polygon-rpc.com"`
}

// LoadSecrets parsea las credenciales del entorno.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.ParseWithOptions(&s, env.Options{}); err != nil {
		return Secrets{}, domain.NewOpError(domain.ErrConfig, "config.LoadSecrets", err)
	}
	return s, nil
}

// RequireLive valida lo mínimo para operar en live.
func (s Secrets) RequireLive(redeem bool) error {
	if s.PrivateKey == "" {
		return domain.NewOpError(domain.ErrConfig, "config.Secrets", errors.New("POLY_PRIVATE_KEY is required in live mode"))
	}
	if redeem && s.FunderAddress == "" {
		return domain.NewOpError(domain.ErrConfig, "config.Secrets",
			fmt.Errorf("POLY_FUNDER_ADDRESS is required to redeem through the Safe relay"))
	}
	return nil
}

// String oculta la clave privada en logs.
func (s Secrets) String() string {
	key := "<unset>"
	if s.PrivateKey != "" {
		key = "<redacted>"
	}
	return fmt.Sprintf("Secrets{PrivateKey:%s FunderAddress:%s PolygonRPC:%s}", key, s.FunderAddress, s.PolygonRPC)
}
