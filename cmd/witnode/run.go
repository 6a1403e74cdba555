package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/witmesh/witnode/pkg/chain"
	"github.com/witmesh/witnode/pkg/config"
	"github.com/witmesh/witnode/pkg/crypto"
	"github.com/witmesh/witnode/pkg/drpool"
	"github.com/witmesh/witnode/pkg/epoch"
	"github.com/witmesh/witnode/pkg/events"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/peer"
	"github.com/witmesh/witnode/pkg/reputation"
	"github.com/witmesh/witnode/pkg/rpc"
	"github.com/witmesh/witnode/pkg/session"
	"github.com/witmesh/witnode/pkg/storage"
	"github.com/witmesh/witnode/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a witnode instance",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().String("config", "", "Path to a TOML config file (optional, defaults apply otherwise)")
	runCmd.Flags().String("env", "mainnet", "Network environment (mainnet, testnet, testnet-3)")
	runCmd.Flags().String("key-file", "", "Path to the node's signing key (default: <db_path>/node.key)")
}

func runNode(cmd *cobra.Command, args []string) error {
	env, _ := cmd.Flags().GetString("env")
	configPath, _ := cmd.Flags().GetString("config")
	keyFile, _ := cmd.Flags().GetString("key-file")

	cfg := config.Defaults(config.Environment(env))
	if configPath != "" {
		loaded, err := config.Load(configPath, config.Environment(env))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	log := logging.WithComponent("main")

	store, err := storage.NewBoltStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if keyFile == "" {
		keyFile = filepath.Join(cfg.Storage.DBPath, "node.key")
	}
	keyPair, err := loadOrGenerateKey(keyFile)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	pkh, err := crypto.PKH(keyPair.Public.SerializeCompressed())
	if err != nil {
		return fmt.Errorf("derive node pkh: %w", err)
	}
	log.Info().Str("pkh", pkh.String()).Msg("node identity loaded")

	secretKey, err := loadOrGeneratePeerSecret(store)
	if err != nil {
		return fmt.Errorf("load peer secret: %w", err)
	}

	networkMagic := networkMagicFor(config.Environment(env))
	peerBook := peer.NewBook(secretKey, cfg.Connections.ServerAddr)
	if err := peerBook.Load(store, networkMagic); err != nil {
		log.Warn().Err(err).Msg("loading persisted peer book")
	}
	for _, addr := range cfg.Connections.KnownPeers {
		peerBook.AddToNew([]string{addr}, addr)
	}

	ars := reputation.NewActiveSet(int(cfg.Consensus.ActivityPeriod))
	trs := reputation.NewTotalReputationSet()
	// Bootstrap: until the active reputation set has been populated by
	// real witnessing history, seed it with this node's own identity so
	// a freshly initialized chain has at least one eligible miner.
	ars.PushActivity([]types.PublicKeyHash{pkh})
	trs.Issue(pkh, cfg.Consensus.ReputationIssuance)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	pool := drpool.New(drpool.Config{
		CommitsPeriod: cfg.Consensus.ActivityPeriod / 100, // epochs; a conservative fraction of the activity window
		RevealsPeriod: cfg.Consensus.ActivityPeriod / 100,
	}, ars)

	chainMgr := chain.New(store, pool, ars, trs, broker, chain.Config{
		MaxBlockWeight:    cfg.Consensus.MaxBlockWeight,
		SuperblockPeriod:  cfg.Consensus.SuperblockPeriod,
		EligibilityFactor: 1.0,
	})
	if err := chainMgr.Load(store); err != nil {
		return fmt.Errorf("load chain state: %w", err)
	}
	superblocks := chain.NewSuperblockPool(trs)

	dialer := session.TCPDialer{Timeout: time.Duration(cfg.Connections.HandshakeTimeoutSeconds) * time.Second}
	sessionMgr := session.NewManager(session.NewGobLengthPrefixedCodec(), peerBook, dialer, cfg.Connections.ServerAddr, session.Config{
		HandshakeTimeout:     time.Duration(cfg.Connections.HandshakeTimeoutSeconds) * time.Second,
		HandshakeMaxTSDiff:   2 * time.Minute,
		BootstrapPeersPeriod: time.Duration(cfg.Connections.BootstrapPeersPeriodSeconds) * time.Second,
		OutboundLimit:        cfg.Connections.OutboundLimit,
	})

	epochMgr := epoch.NewManager(epoch.Config{
		CheckpointZeroTimestamp: cfg.Consensus.CheckpointZeroTimestamp,
		CheckpointsPeriod:       cfg.Consensus.CheckpointsPeriodSeconds,
	}, nil)
	stopEpoch := epochMgr.Run()
	defer stopEpoch()

	ticks := make(chan epoch.Notification, 16)
	epochMgr.SubscribeAll(ticks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sessionMgr.RunBootstrap(ctx)
	go peerBook.RunFeeler(ctx, dialer, time.Duration(cfg.Connections.DiscoveryPeersPeriodSeconds)*time.Second)
	go runFlushLoop(ctx, peerBook, store, networkMagic, time.Duration(cfg.Connections.StoragePeersPeriodSeconds)*time.Second)
	go runEpochLoop(ctx, ticks, chainMgr, pool, superblocks, keyPair, pkh, cfg)

	var inboundLn net.Listener
	if cfg.Connections.ServerAddr != "" {
		inboundLn, err = net.Listen("tcp", cfg.Connections.ServerAddr)
		if err != nil {
			return fmt.Errorf("listen for inbound peers: %w", err)
		}
		go acceptInbound(ctx, inboundLn, sessionMgr)
		log.Info().Str("addr", cfg.Connections.ServerAddr).Msg("p2p transport listening")
	}

	rpcServer := rpc.NewServer(rpc.Config{
		TCPAddress:             valueIf(cfg.JSONRPC.Enabled, cfg.JSONRPC.TCPAddress),
		HTTPAddress:            valueIf(cfg.JSONRPC.Enabled, cfg.JSONRPC.HTTPAddress),
		WSAddress:              valueIf(cfg.JSONRPC.Enabled, cfg.JSONRPC.WSAddress),
		EnableSensitiveMethods: cfg.JSONRPC.EnableSensitiveMethods,
	}, chainMgr, pool, peerBook, sessionMgr, broker)
	if cfg.JSONRPC.Enabled {
		if err := rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc surface: %w", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = rpcServer.Stop(shutdownCtx)
	if inboundLn != nil {
		_ = inboundLn.Close()
	}
	cancel()
	if err := peerBook.Flush(store, networkMagic); err != nil {
		log.Warn().Err(err).Msg("final peer book flush")
	}
	return nil
}

func valueIf(enabled bool, addr string) string {
	if !enabled {
		return ""
	}
	return addr
}

// runEpochLoop drives the node's per-epoch responsibilities: resolving
// data requests whose commit/reveal windows have closed, attempting to
// mine a candidate block when eligible, and casting a superblock vote
// at each superblock boundary.
func runEpochLoop(ctx context.Context, ticks <-chan epoch.Notification, chainMgr *chain.Manager, pool *drpool.Pool, superblocks *chain.SuperblockPool, keyPair *crypto.KeyPair, pkh types.PublicKeyHash, cfg *config.Config) {
	log := logging.WithComponent("main")
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			epochNum := uint32(tick.Epoch)
			resolveDataRequests(pool, chainMgr, epochNum, log)
			attemptMining(chainMgr, keyPair, epochNum, log)
			maybeVoteSuperblock(chainMgr, superblocks, pkh, keyPair, epochNum, cfg.Consensus.SuperblockPeriod, log)
		}
	}
}

func resolveDataRequests(pool *drpool.Pool, chainMgr *chain.Manager, epochNum uint32, log zerolog.Logger) {
	for _, id := range pool.PendingIDs() {
		ready, err := pool.ReadyForResolution(id, epochNum)
		if err != nil || !ready {
			continue
		}
		dr, ok := pool.Get(id)
		if !ok {
			continue
		}
		var tally types.TallyTransactionBody
		if len(dr.Reveals) == 0 {
			tally, err = pool.ResolveNoReveals(id)
		} else {
			tally, err = pool.ComputeTally(id)
		}
		if err != nil {
			log.Warn().Err(err).Str("request", id.String()).Msg("resolving data request")
			continue
		}
		txn := types.Transaction{Kind: types.TxTally, Tally: &tally}
		if _, err := chainMgr.SubmitTransaction(txn, EstimateTallyWeight(tally)); err != nil {
			log.Warn().Err(err).Str("request", id.String()).Msg("submitting tally transaction")
		}
	}
}

// EstimateTallyWeight gives a tally transaction a nominal weight for
// mempool priority ordering; tally outcomes are small and fixed-shape
// compared to a data request's retrieval script, so a flat estimate is
// sufficient here.
func EstimateTallyWeight(types.TallyTransactionBody) uint32 {
	return 512
}

func attemptMining(chainMgr *chain.Manager, keyPair *crypto.KeyPair, epochNum uint32, log zerolog.Logger) {
	block, err := chainMgr.BuildCandidate(keyPair, epochNum)
	if err != nil {
		if !errors.Is(err, chain.ErrNotEligibleToMine) {
			log.Warn().Err(err).Uint32("epoch", epochNum).Msg("building mining candidate")
		}
		return
	}
	if err := chainMgr.ApplyBlock(block, epochNum); err != nil {
		log.Warn().Err(err).Uint32("epoch", epochNum).Msg("applying own mined block")
	}
}

func maybeVoteSuperblock(chainMgr *chain.Manager, pool *chain.SuperblockPool, pkh types.PublicKeyHash, keyPair *crypto.KeyPair, epochNum, period uint32, log zerolog.Logger) {
	if period == 0 || epochNum%period != 0 {
		return
	}
	tip := chainMgr.Tip()
	vote := chain.SuperBlockVote{SuperblockHash: tip.HashPrevBlock, Voter: pkh, Epoch: epochNum}
	if pool.AddVote(vote) {
		chainMgr.PublishSuperblockNotify(tip)
		log.Info().Uint32("epoch", epochNum).Str("superblock", tip.HashPrevBlock.String()).Msg("superblock consolidated")
	}
}

func acceptInbound(ctx context.Context, ln net.Listener, sessionMgr *session.Manager) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}
		sessionMgr.AcceptInbound(conn, conn.RemoteAddr().String())
	}
}

func runFlushLoop(ctx context.Context, book *peer.Book, store storage.Store, magic uint32, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logging.WithComponent("main")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := book.Flush(store, magic); err != nil {
				log.Warn().Err(err).Msg("periodic peer book flush")
			}
		}
	}
}

// networkMagicFor derives a fixed 16-bit network magic per environment
// so mainnet and testnet peer books and wire messages never collide,
// per spec.md §6's per-environment configuration and §4.4's
// network-magic-derived persistence key.
func networkMagicFor(env config.Environment) uint32 {
	switch env {
	case config.Testnet:
		return 0x5254
	case config.Testnet3:
		return 0x5253
	default:
		return 0x5255
	}
}

func loadOrGenerateKey(path string) (*crypto.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return crypto.KeyPairFromBytes(data)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, kp.Private.Serialize(), 0o600); err != nil {
		return nil, err
	}
	return kp, nil
}

func loadOrGeneratePeerSecret(store storage.Store) (uint64, error) {
	raw, err := store.Get(storage.KeyspaceChainInfo, "peer-secret")
	if err != nil {
		return 0, err
	}
	if len(raw) == 8 {
		return binary.BigEndian.Uint64(raw), nil
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}
	if err := store.Put(storage.KeyspaceChainInfo, "peer-secret", buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}
