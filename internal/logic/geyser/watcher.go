// Package geyser 订阅 yellowstone geyser 的交易状态推送，为 Monitor 提供唤醒信号
package geyser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

type Option struct {
	Endpoint          string
	XToken            string
	Insecure          bool // 明文连接，本地测试节点使用
	Commitment        txn.Commitment
	AccountInclude    []string // 非空时按账户过滤，否则按签名逐个过滤
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	PingInterval      time.Duration
	SendTimeout       time.Duration
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
	MaxRecvMsgSize    int
}

func (o *Option) withDefaults() {
	if o.Commitment == "" {
		o.Commitment = txn.CommitmentProcessed
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 2 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 10 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = 30 * time.Second
	}
	if o.KeepaliveTimeout <= 0 {
		o.KeepaliveTimeout = 10 * time.Second
	}
	if o.MaxRecvMsgSize <= 0 {
		o.MaxRecvMsgSize = 64 << 20
	}
}

// Watcher 实现 txn.ConfirmationHinter。
// 连接断开不影响 Monitor 正确性，只会退化为纯轮询。
type Watcher struct {
	opt    Option
	conn   *grpc.ClientConn
	client pb.GeyserClient

	mu                sync.Mutex
	stopped           bool
	connCancel        context.CancelFunc
	reconnectAttempts int
	nextID            uint64
	watches           map[types.Signature]map[uint64]chan struct{}

	refresh chan struct{} // 签名集合变化，需要重发订阅
}

var _ txn.ConfirmationHinter = (*Watcher)(nil)

// NewWatcher 建立 gRPC 连接（非阻塞），Start 后开始订阅
func NewWatcher(opt Option) (*Watcher, error) {
	opt.withDefaults()

	creds := credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	if opt.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(
		opt.Endpoint,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(opt.MaxRecvMsgSize)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opt.KeepaliveInterval,
			Timeout:             opt.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("geyser dial %s: %w", opt.Endpoint, err)
	}
	w := newWatcher(opt)
	w.conn = conn
	w.client = pb.NewGeyserClient(conn)
	return w, nil
}

func newWatcher(opt Option) *Watcher {
	return &Watcher{
		opt:     opt,
		watches: make(map[types.Signature]map[uint64]chan struct{}),
		refresh: make(chan struct{}, 1),
	}
}

// Watch 注册签名，返回的 channel 在收到该签名的状态推送时被非阻塞通知
func (w *Watcher) Watch(sig types.Signature) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	w.mu.Lock()
	w.nextID++
	id := w.nextID
	subs, ok := w.watches[sig]
	if !ok {
		subs = make(map[uint64]chan struct{})
		w.watches[sig] = subs
	}
	subs[id] = ch
	w.mu.Unlock()
	if !ok {
		w.signalRefresh()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			removed := false
			if subs, ok := w.watches[sig]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(w.watches, sig)
					removed = true
				}
			}
			w.mu.Unlock()
			if removed {
				w.signalRefresh()
			}
		})
	}
	return ch, cancel
}

func (w *Watcher) signalRefresh() {
	if len(w.opt.AccountInclude) > 0 {
		return
	}
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

// notify 收到推送的签名，唤醒所有订阅者
func (w *Watcher) notify(raw []byte) int {
	sig, err := types.SignatureFromBytes(raw)
	if err != nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, ch := range w.watches[sig] {
		select {
		case ch <- struct{}{}:
		default:
		}
		n++
	}
	return n
}

func (w *Watcher) watching() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}

func commitmentLevel(c txn.Commitment) pb.CommitmentLevel {
	switch c {
	case txn.CommitmentFinalized:
		return pb.CommitmentLevel_FINALIZED
	case txn.CommitmentConfirmed:
		return pb.CommitmentLevel_CONFIRMED
	default:
		return pb.CommitmentLevel_PROCESSED
	}
}

// buildSubscribeRequest 按当前签名集合构造订阅请求（每次发送都整体替换过滤器）
func (w *Watcher) buildSubscribeRequest() *pb.SubscribeRequest {
	filters := make(map[string]*pb.SubscribeRequestFilterTransactions)
	if len(w.opt.AccountInclude) > 0 {
		filters["accounts"] = &pb.SubscribeRequestFilterTransactions{
			Vote:           boolPtr(false),
			AccountInclude: w.opt.AccountInclude,
		}
	} else {
		w.mu.Lock()
		for sig := range w.watches {
			s := sig.String()
			filters[s] = &pb.SubscribeRequestFilterTransactions{Signature: &s}
		}
		w.mu.Unlock()
	}
	commitment := commitmentLevel(w.opt.Commitment)
	return &pb.SubscribeRequest{
		TransactionsStatus: filters,
		Commitment:         &commitment,
	}
}

func (w *Watcher) Start() {
	w.mustConnect()
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	if w.connCancel != nil {
		w.connCancel()
		w.connCancel = nil
	}
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			logger.Warnf("[Geyser] close conn: %v", err)
		}
	}
}

// mustConnect 循环直到连接成功或已停止
func (w *Watcher) mustConnect() {
	for {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		attempts := w.reconnectAttempts
		w.reconnectAttempts++
		w.mu.Unlock()

		if attempts > 0 {
			if attempts > 3 {
				time.Sleep(w.opt.ReconnectInterval * 2)
			} else {
				time.Sleep(w.opt.ReconnectInterval)
			}
		}
		logger.Infof("[Geyser] connecting %s, attempt %d", w.opt.Endpoint, attempts+1)
		if err := w.connect(); err != nil {
			logger.Warnf("[Geyser] connect failed: %v, will retry", err)
			continue
		}
		return
	}
}

// connect 只尝试一次
func (w *Watcher) connect() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return errors.New("watcher is stopped")
	}
	if w.connCancel != nil {
		w.connCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.connCancel = cancel
	w.mu.Unlock()

	metaCtx := metadata.NewOutgoingContext(ctx, metadata.New(map[string]string{"x-token": w.opt.XToken}))
	dialCtx, dialCancel := context.WithTimeout(metaCtx, w.opt.ConnectTimeout)
	defer dialCancel()
	stream, err := subscribe(dialCtx, metaCtx, w.client)
	if err != nil {
		cancel()
		return err
	}
	if err := sendWithTimeout(ctx, stream.Send, w.buildSubscribeRequest(), w.opt.SendTimeout); err != nil {
		cancel()
		return fmt.Errorf("send subscribe request: %w", err)
	}

	w.mu.Lock()
	w.reconnectAttempts = 0
	w.mu.Unlock()
	logger.Infof("[Geyser] subscription established, watching %d signatures", w.watching())

	go w.sendLoop(ctx, stream)
	go w.recvLoop(ctx, stream)
	return nil
}

// subscribe 在 dialCtx 超时内建立流，流本身的生命周期跟随 streamCtx
func subscribe(dialCtx, streamCtx context.Context, client pb.GeyserClient) (pb.Geyser_SubscribeClient, error) {
	type result struct {
		stream pb.Geyser_SubscribeClient
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := client.Subscribe(streamCtx)
		done <- result{s, err}
	}()
	select {
	case <-dialCtx.Done():
		return nil, fmt.Errorf("subscribe: %w", dialCtx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("subscribe: %w", r.err)
		}
		return r.stream, nil
	}
}

// sendLoop 是 stream 唯一的发送方：心跳与过滤器刷新
func (w *Watcher) sendLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Geyser] sendLoop panic: %v", r)
		}
	}()
	ticker := time.NewTicker(w.opt.PingInterval)
	defer ticker.Stop()
	var pingID int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.refresh:
			if err := sendWithTimeout(ctx, stream.Send, w.buildSubscribeRequest(), w.opt.SendTimeout); err != nil {
				logger.Warnf("[Geyser] refresh subscription failed: %v", err)
			}
		case <-ticker.C:
			pingID++
			req := &pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: pingID}}
			if err := sendWithTimeout(ctx, stream.Send, req, w.opt.SendTimeout); err != nil {
				logger.Warnf("[Geyser] ping failed: %v", err)
			}
		}
	}
}

func (w *Watcher) recvLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Geyser] recvLoop panic: %v", r)
		}
	}()
	for {
		update, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				logger.Warnf("[Geyser] stream closed by server, reconnecting")
			} else {
				logger.Warnf("[Geyser] stream error: %v, reconnecting", err)
			}
			w.reconnect()
			return
		}
		w.handleUpdate(update)
	}
}

func (w *Watcher) handleUpdate(update *pb.SubscribeUpdate) {
	switch u := update.GetUpdateOneof().(type) {
	case *pb.SubscribeUpdate_TransactionStatus:
		if n := w.notify(u.TransactionStatus.GetSignature()); n > 0 {
			logger.Debugf("[Geyser] status at slot %d woke %d monitors", u.TransactionStatus.GetSlot(), n)
		}
	case *pb.SubscribeUpdate_Transaction:
		w.notify(u.Transaction.GetTransaction().GetSignature())
	}
}

func (w *Watcher) reconnect() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if w.connCancel != nil {
		w.connCancel()
		w.connCancel = nil
	}
	w.mu.Unlock()

	go w.mustConnect()
}

// 带超时的 Send
func sendWithTimeout[T any](ctx context.Context, sendFunc func(T) error, req T, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sendFunc(req)
	}()

	select {
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	case err := <-done:
		return err
	}
}

func boolPtr(b bool) *bool {
	return &b
}
