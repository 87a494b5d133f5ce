package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/code-payments/code-staking/pkg/app"
	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/solana"
)

type config struct {
	SolanaRPCEndpoint string  `mapstructure:"solana_rpc_endpoint"`
	RPCRateLimit      float64 `mapstructure:"rpc_rate_limit"`

	StakingProgramID string `mapstructure:"staking_program_id"`
	StakingMint      string `mapstructure:"staking_mint"`
	RewardMint       string `mapstructure:"reward_mint"`

	// Exactly one of PrivateKey, KeypairPath or Mnemonic identifies the owner
	PrivateKey         string `mapstructure:"private_key"`
	KeypairPath        string `mapstructure:"keypair_path"`
	Mnemonic           string `mapstructure:"mnemonic"`
	MnemonicPassphrase string `mapstructure:"mnemonic_passphrase"`

	// FeePayerPrivateKey optionally pays fees and rent instead of the owner
	FeePayerPrivateKey string `mapstructure:"fee_payer_private_key"`

	OperationTimeout   time.Duration `mapstructure:"operation_timeout"`
	Commitment         string        `mapstructure:"commitment"`
	MinFeePayerBalance uint64        `mapstructure:"min_fee_payer_balance"`

	// MintDecimals and LogLocale are only used to render quark amounts in logs
	MintDecimals int    `mapstructure:"mint_decimals"`
	LogLocale    string `mapstructure:"log_locale"`

	// ExplorerCluster overrides the cluster explorer links point at, for
	// endpoints that don't identify their cluster
	ExplorerCluster string `mapstructure:"explorer_cluster"`

	StakeAmount        uint64        `mapstructure:"stake_amount"`
	UnstakeAmount      uint64        `mapstructure:"unstake_amount"`
	RewardAccrualDelay time.Duration `mapstructure:"reward_accrual_delay"`

	EtcdEndpoints string        `mapstructure:"etcd_endpoints"`
	EtcdLockTTL   time.Duration `mapstructure:"etcd_lock_ttl"`

	// Simulate runs against an in-memory network instead of SolanaRPCEndpoint
	Simulate               bool   `mapstructure:"simulate"`
	SimulatedStakingQuarks uint64 `mapstructure:"simulated_staking_quarks"`
}

var defaultAppConfig = config{
	SolanaRPCEndpoint: string(solana.EnvironmentDev),
	RPCRateLimit:      10,

	OperationTimeout: 2 * time.Minute,
	Commitment:       "confirmed",

	MintDecimals: common.DefaultMintDecimals,
	LogLocale:    "en",

	StakeAmount:        1_000_000,
	UnstakeAmount:      500_000,
	RewardAccrualDelay: 5 * time.Second,

	EtcdLockTTL: 10 * time.Second,

	SimulatedStakingQuarks: 10_000_000,
}

func init() {
	for key, env := range map[string]string{
		"app.solana_rpc_endpoint":      "SOLANA_RPC_ENDPOINT",
		"app.rpc_rate_limit":           "RPC_RATE_LIMIT",
		"app.staking_program_id":       "STAKING_PROGRAM_ID",
		"app.staking_mint":             "STAKING_MINT",
		"app.reward_mint":              "REWARD_MINT",
		"app.private_key":              "PRIVATE_KEY",
		"app.keypair_path":             "KEYPAIR_PATH",
		"app.mnemonic":                 "MNEMONIC",
		"app.mnemonic_passphrase":      "MNEMONIC_PASSPHRASE",
		"app.fee_payer_private_key":    "FEE_PAYER_PRIVATE_KEY",
		"app.operation_timeout":        "OPERATION_TIMEOUT",
		"app.commitment":               "COMMITMENT",
		"app.min_fee_payer_balance":    "MIN_FEE_PAYER_BALANCE",
		"app.mint_decimals":            "MINT_DECIMALS",
		"app.log_locale":               "LOG_LOCALE",
		"app.explorer_cluster":         "EXPLORER_CLUSTER",
		"app.stake_amount":             "STAKE_AMOUNT",
		"app.unstake_amount":           "UNSTAKE_AMOUNT",
		"app.reward_accrual_delay":     "REWARD_ACCRUAL_DELAY",
		"app.etcd_endpoints":           "ETCD_ENDPOINTS",
		"app.etcd_lock_ttl":            "ETCD_LOCK_TTL",
		"app.simulate":                 "SIMULATE",
		"app.simulated_staking_quarks": "SIMULATED_STAKING_QUARKS",
	} {
		_ = viper.BindEnv(key, env)
	}
}

func decodeConfig(raw app.Config) (*config, error) {
	decoded := defaultAppConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating config decoder")
	}

	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return nil, errors.Wrap(err, "error decoding app config")
	}
	return &decoded, nil
}

func (c *config) etcdEndpoints() []string {
	var endpoints []string
	for _, endpoint := range strings.Split(c.EtcdEndpoints, ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
	}
	return endpoints
}

func (c *config) logLocale() (language.Tag, error) {
	locale, err := language.Parse(c.LogLocale)
	if err != nil {
		return language.Und, errors.Wrapf(err, "invalid log locale %q", c.LogLocale)
	}
	return locale, nil
}

// explorerEnvironment picks the environment used for explorer links. Without
// an explicit cluster, the RPC endpoint is linked as-is.
func (c *config) explorerEnvironment() (solana.Environment, error) {
	if c.ExplorerCluster == "" {
		return solana.Environment(c.SolanaRPCEndpoint), nil
	}
	return solana.EnvironmentFromCluster(c.ExplorerCluster, c.SolanaRPCEndpoint)
}

// loadOwner loads the owner from whichever secret is configured.
func (c *config) loadOwner() (*common.Account, error) {
	var configured int
	for _, v := range []string{c.PrivateKey, c.KeypairPath, c.Mnemonic} {
		if v != "" {
			configured++
		}
	}
	if configured != 1 {
		return nil, errors.New("exactly one of PRIVATE_KEY, KEYPAIR_PATH or MNEMONIC must be set")
	}

	switch {
	case c.PrivateKey != "":
		return common.NewAccountFromPrivateKeyString(c.PrivateKey)
	case c.Mnemonic != "":
		return common.NewAccountFromMnemonic(c.Mnemonic, c.MnemonicPassphrase)
	}

	data, err := app.LoadFile(c.KeypairPath)
	if err != nil {
		return nil, errors.Wrap(err, "error loading keypair")
	}

	// Keypair files written by solana-keygen are a JSON array of the 64 byte
	// secret key
	var secret []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, errors.Wrap(err, "invalid keypair file")
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, errors.New("invalid keypair file")
		}
		secret = append(secret, byte(v))
	}
	return common.NewAccountFromPrivateKeyBytes(secret)
}

func (c *config) loadFeePayer(owner *common.Account) (*common.Account, error) {
	if c.FeePayerPrivateKey == "" {
		return owner, nil
	}
	return common.NewAccountFromPrivateKeyString(c.FeePayerPrivateKey)
}
