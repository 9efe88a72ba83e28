package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"thecloser/internal/model/bot"
	"thecloser/internal/transport"
)

const (
	defaultReconcileInterval = 10 * time.Second
	keepAliveInterval        = 5 * time.Minute
	keepAliveJitter          = 10 // 秒
)

// desiredSource 期望在线的 Bot 集合
type desiredSource interface {
	ListDesired(ctx context.Context, platform bot.Platform) ([]*bot.Agent, error)
	UpdateStatus(ctx context.Context, botID string, status bot.Status) error
}

// turnHandler 处理单条入站消息
type turnHandler interface {
	HandleMessage(ctx context.Context, botID string, conn transport.Conn, in transport.Inbound) error
}

// runningBot 一个在线 Bot 的运行态
type runningBot struct {
	agent  *bot.Agent
	conn   transport.Conn
	cancel context.CancelFunc
}

// Supervisor Bot 连接监督器
// 周期性对账：数据库里的期望集合 vs 进程内的在线集合，差集启动、反差集停止
// active 只在调谐循环这一个 goroutine 里读写；对外通过 Registry 暴露只读投影
type Supervisor struct {
	bots     desiredSource
	dialer   transport.Dialer
	session  turnHandler
	registry *transport.Registry
	platform bot.Platform
	interval time.Duration

	active map[string]*runningBot
	wg     sync.WaitGroup
}

// NewSupervisor 创建监督器
func NewSupervisor(bots desiredSource, dialer transport.Dialer, session turnHandler, registry *transport.Registry, platform bot.Platform, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if registry == nil {
		registry = transport.NewRegistry()
	}
	return &Supervisor{
		bots:     bots,
		dialer:   dialer,
		session:  session,
		registry: registry,
		platform: platform,
		interval: interval,
		active:   make(map[string]*runningBot),
	}
}

// Registry 返回连接注册表（只读投影）
func (s *Supervisor) Registry() *transport.Registry {
	return s.registry
}

// Run 运行调谐循环，直到 ctx 取消
func (s *Supervisor) Run(ctx context.Context) {
	log.Info().Str("platform", string(s.platform)).Dur("interval", s.interval).Msg("supervisor started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// reconcile 一次对账：启动缺失的、停止多余的，已在线的不动
func (s *Supervisor) reconcile(ctx context.Context) {
	desired, err := s.bots.ListDesired(ctx, s.platform)
	if err != nil {
		log.Error().Err(err).Msg("failed to load desired bots")
		return
	}

	desiredByID := make(map[string]*bot.Agent, len(desired))
	for _, agent := range desired {
		desiredByID[agent.ID] = agent
	}

	for id, agent := range desiredByID {
		if _, running := s.active[id]; !running {
			s.startBot(ctx, agent)
		}
	}

	for id := range s.active {
		if _, wanted := desiredByID[id]; !wanted {
			s.stopBot(id)
		}
	}
}

// startBot 建立连接并启动该 Bot 的消息循环和心跳
// 凭证无效（AuthError）时把 Bot 置为 error 状态，等运营方重新登录，不自动重试
func (s *Supervisor) startBot(ctx context.Context, agent *bot.Agent) {
	conn, err := s.dialer.Dial(ctx, agent)
	if err != nil {
		var authErr *transport.AuthError
		if errors.As(err, &authErr) {
			log.Error().Str("bot", agent.Name).Msg("bot session invalid")
			if uerr := s.bots.UpdateStatus(ctx, agent.ID, bot.StatusError); uerr != nil {
				log.Error().Err(uerr).Str("bot_id", agent.ID).Msg("failed to mark bot errored")
			}
			return
		}
		log.Error().Err(err).Str("bot", agent.Name).Msg("failed to start bot")
		return
	}

	botCtx, cancel := context.WithCancel(ctx)
	s.active[agent.ID] = &runningBot{agent: agent, conn: conn, cancel: cancel}
	s.registry.Put(agent.ID, conn)

	s.wg.Add(2)
	go s.messageLoop(botCtx, ctx, agent.ID, conn)
	go s.keepAliveLoop(botCtx, agent.Name, conn)

	log.Info().
		Str("bot", agent.Name).
		Str("model", agent.Model).
		Bool("rag", agent.UseRAG).
		Msg("bot started")
}

// stopBot 停止一个在线 Bot
func (s *Supervisor) stopBot(botID string) {
	rb, ok := s.active[botID]
	if !ok {
		return
	}

	rb.cancel()
	if err := rb.conn.Close(); err != nil {
		log.Warn().Err(err).Str("bot_id", botID).Msg("failed to close connection")
	}
	delete(s.active, botID)
	s.registry.Remove(botID)

	log.Info().Str("bot_id", botID).Msg("bot stopped")
}

// shutdown 停止全部在线 Bot 并等待消息循环退出
func (s *Supervisor) shutdown() {
	for id := range s.active {
		s.stopBot(id)
	}
	s.wg.Wait()
	log.Info().Msg("supervisor stopped")
}

// messageLoop 读取入站消息，每条消息一个独立回合
// 回合并发执行，单个对话阻塞不会拖住其他对话
// 回合挂在 turnCtx（监督器生命周期）上：停止单个 Bot 只取消循环，
// 进行中的回合跑完为止，不会留下有用户消息没有回复的半截回合
func (s *Supervisor) messageLoop(ctx, turnCtx context.Context, botID string, conn transport.Conn) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-conn.Inbound():
			if !ok {
				return
			}
			s.wg.Add(1)
			go func(in transport.Inbound) {
				defer s.wg.Done()
				if err := s.session.HandleMessage(turnCtx, botID, conn, in); err != nil {
					log.Error().Err(err).Str("bot_id", botID).Msg("turn failed")
				}
			}(in)
		}
	}
}

// keepAliveLoop 周期性刷新在线状态，带随机抖动
func (s *Supervisor) keepAliveLoop(ctx context.Context, botName string, conn transport.Conn) {
	defer s.wg.Done()

	for {
		delay := keepAliveInterval + time.Duration(rand.Intn(keepAliveJitter+1))*time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			if err := conn.KeepAlive(ctx); err != nil {
				log.Error().Err(err).Str("bot", botName).Msg("failed to refresh presence")
			}
		}
	}
}
