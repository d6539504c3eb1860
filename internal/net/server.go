package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
	"fenrir/internal/utils"
)

const (
	MAX_RECV_SIZE      = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Engine is the subset of the matching core the TCP front-end depends on.
type Engine interface {
	SubmitOrder(order *common.Order) (*common.Order, error)
	CancelOrder(orderID, symbol string) error
}

type Server struct {
	address string
	port    int
	engine  Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	clientSessionsLock sync.Mutex
	clientSessions     map[string]ClientSession // address -> session
	// sessionByTrader and orderOwner let ReportTrade route an execution
	// report back to the connection that submitted the order, since a
	// Trade only carries order ids, not trader ids or addresses.
	sessionByTrader map[string]string // traderID -> address
	orderOwner      map[string]string // orderID -> traderID

	clientMessages chan ClientMessage
}

func New(address string, port int, engine Engine) *Server {
	return &Server{
		address:         address,
		port:            port,
		engine:          engine,
		pool:            utils.NewWorkerPool(defaultNWorkers),
		clientSessions:  make(map[string]ClientSession),
		sessionByTrader: make(map[string]string),
		orderOwner:      make(map[string]string),
		clientMessages:  make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			log.Info().Msg("listening for new client connections")
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.LocalAddr().String()).
				Msg("new client added")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// ReportTrade sends each side of trade an execution report, looking up
// which connection owns the taker/maker order via orderOwner +
// sessionByTrader.
func (s *Server) ReportTrade(trade common.Trade) error {
	takerBytes, makerBytes, err := generateWireTradeReports(trade)
	if err != nil {
		return err
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	if err := s.sendToOrderOwnerLocked(trade.TakerOrderID, takerBytes); err != nil {
		log.Error().Err(err).Str("orderID", trade.TakerOrderID).Msg("unable to report trade to taker")
	}
	if err := s.sendToOrderOwnerLocked(trade.MakerOrderID, makerBytes); err != nil {
		log.Error().Err(err).Str("orderID", trade.MakerOrderID).Msg("unable to report trade to maker")
	}
	return nil
}

func (s *Server) sendToOrderOwnerLocked(orderID string, payload []byte) error {
	traderID, ok := s.orderOwner[orderID]
	if !ok {
		return ErrClientDoesNotExist
	}
	address, ok := s.sessionByTrader[traderID]
	if !ok {
		return ErrClientDoesNotExist
	}
	session, ok := s.clientSessions[address]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := session.conn.Write(payload); err != nil {
		delete(s.clientSessions, address)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) ReportError(clientAddress, orderID string, cause error) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	report, err := generateWireErrorReports(orderID, cause)
	if err != nil {
		return err
	}

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return ErrClientDoesNotExist
	}

	if _, err := client.conn.Write(report); err != nil {
		delete(s.clientSessions, clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler reads off incoming messages from clients and handles
// high-level session logic. Messages are received from the pool of
// workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
				s.ReportError(message.clientAddress, "", err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch message.message.GetType() {
	case Heartbeat:
		return nil

	case NewOrder:
		msg, ok := message.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		order, err := msg.Order()
		if err != nil {
			return err
		}

		s.trackOrder(order.ID, order.TraderID, message.clientAddress)

		if _, err := s.engine.SubmitOrder(order); err != nil {
			s.ReportError(message.clientAddress, order.ID, err)
			log.Error().
				Err(err).
				Str("clientAddress", message.clientAddress).
				Str("orderID", order.ID).
				Msg("error while submitting order")
		}

	case CancelOrder:
		msg, ok := message.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		if err := s.engine.CancelOrder(msg.OrderID, msg.Symbol); err != nil {
			s.ReportError(message.clientAddress, msg.OrderID, err)
			log.Error().
				Err(err).
				Str("clientAddress", message.clientAddress).
				Str("orderID", msg.OrderID).
				Msg("error while cancelling order")
		}

	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Any("message", message).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
	return nil
}

func (s *Server) trackOrder(orderID, traderID, address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.orderOwner[orderID] = traderID
	s.sessionByTrader[traderID] = address
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to
// sessionHandler to handle it. If the connection dies, the client
// session is cleaned up.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Str("address", conn.LocalAddr().String()).Err(err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.LocalAddr().Network()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, MAX_RECV_SIZE)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.LocalAddr().String()).
				Msg("error reading from connection")
			s.deleteClientSession(conn.LocalAddr().String())
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.LocalAddr().String()).
				Msg("error parsing message")
			s.deleteClientSession(conn.LocalAddr().String())
			return nil
		}

		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: conn.LocalAddr().String(),
		}

		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.LocalAddr().String()] = ClientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	delete(s.clientSessions, address)
}
