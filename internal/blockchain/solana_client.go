package blockchain

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// SolanaClient handles Solana blockchain interactions. It acts as the token
// transfer gateway: reward payouts are SPL token transfers signed by the
// server wallet.
type SolanaClient struct {
	rpcClient        *rpc.Client
	network          string
	tokenMintAddress string
	serverWallet     *solana.Wallet
}

// NewSolanaClient creates a new Solana client
func NewSolanaClient(network, tokenMintAddress, privateKey string) *SolanaClient {
	var rpcURL string
	switch network {
	case "mainnet-beta":
		rpcURL = "https://api.mainnet-beta.solana.com"
	case "devnet":
		rpcURL = "https://api.devnet.solana.com"
	case "testnet":
		rpcURL = "https://api.testnet.solana.com"
	default:
		rpcURL = "https://api.devnet.solana.com"
	}

	client := &SolanaClient{
		rpcClient:        rpc.New(rpcURL),
		network:          network,
		tokenMintAddress: tokenMintAddress,
	}

	// Initialize server wallet if private key is provided
	if privateKey != "" {
		wallet, err := solana.WalletFromPrivateKeyBase58(privateKey)
		if err != nil {
			log.Printf("Warning: Failed to load server wallet: %v", err)
		} else {
			client.serverWallet = wallet
			log.Printf("Server wallet loaded: %s", wallet.PublicKey())
		}
	}

	return client
}

// ValidateWalletAddress validates a Solana wallet address format
func (s *SolanaClient) ValidateWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// Transfer sends tokens from the server wallet to the recipient's associated
// token account and returns the transaction signature. The amount is an
// integer in the token's smallest unit.
func (s *SolanaClient) Transfer(ctx context.Context, walletAddress string, amount decimal.Decimal) (string, error) {
	if s.serverWallet == nil {
		return "", &GatewayError{Reason: "server wallet not configured"}
	}
	if s.tokenMintAddress == "" {
		return "", &GatewayError{Reason: "token mint not configured"}
	}

	recipient, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return "", &GatewayError{Reason: "invalid recipient address", Err: err}
	}

	mint, err := solana.PublicKeyFromBase58(s.tokenMintAddress)
	if err != nil {
		return "", &GatewayError{Reason: "invalid token mint address", Err: err}
	}

	amt := amount.BigInt()
	if !amt.IsUint64() {
		return "", &GatewayError{Reason: fmt.Sprintf("amount %s out of range", amount)}
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(s.serverWallet.PublicKey(), mint)
	if err != nil {
		return "", &GatewayError{Reason: "failed to derive source token account", Err: err}
	}

	destATA, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return "", &GatewayError{Reason: "failed to derive destination token account", Err: err}
	}

	recent, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return "", &GatewayError{Reason: "failed to get recent blockhash", Err: err}
	}

	instruction := token.NewTransferInstruction(
		amt.Uint64(),
		sourceATA,
		destATA,
		s.serverWallet.PublicKey(),
		[]solana.PublicKey{},
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(s.serverWallet.PublicKey()),
	)
	if err != nil {
		return "", &GatewayError{Reason: "failed to build transaction", Err: err}
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.serverWallet.PublicKey()) {
			return &s.serverWallet.PrivateKey
		}
		return nil
	})
	if err != nil {
		return "", &GatewayError{Reason: "failed to sign transaction", Err: err}
	}

	sig, err := s.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		// A context error here means we gave up waiting; the transfer may
		// still land on-chain, so the caller must not treat it as failed.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &GatewayError{Reason: "failed to send transaction", Err: err}
	}

	log.Printf("Token transfer sent: %s (%s to %s)", sig, amount, walletAddress)
	return sig.String(), nil
}

// SignatureStatus describes the on-chain state of a previously submitted
// transfer, used to reconcile transactions whose outcome was unknown.
type SignatureStatus int

const (
	SignatureStatusNotFound SignatureStatus = iota
	SignatureStatusPending
	SignatureStatusConfirmed
	SignatureStatusFailed
)

// GetSignatureStatus checks whether a transfer signature landed on-chain
func (s *SolanaClient) GetSignatureStatus(ctx context.Context, txHash string) (SignatureStatus, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return SignatureStatusNotFound, &GatewayError{Reason: "invalid signature", Err: err}
	}

	status, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return SignatureStatusNotFound, &GatewayError{Reason: "failed to get signature status", Err: err}
	}

	if len(status.Value) == 0 || status.Value[0] == nil {
		return SignatureStatusNotFound, nil
	}

	if status.Value[0].Err != nil {
		return SignatureStatusFailed, nil
	}

	confStatus := status.Value[0].ConfirmationStatus
	if confStatus == rpc.ConfirmationStatusConfirmed || confStatus == rpc.ConfirmationStatusFinalized {
		return SignatureStatusConfirmed, nil
	}

	return SignatureStatusPending, nil
}
