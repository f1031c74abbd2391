package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// BrokersRepository reads broker configuration and maintains the live
// status fields (is_connected, last_connection, last_error).
type BrokersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBrokersRepository creates a brokers repository.
func NewBrokersRepository(db *sql.DB, logger *zap.Logger) *BrokersRepository {
	return &BrokersRepository{
		db:     db,
		logger: logger,
	}
}

const brokerColumns = `
	broker_id,
	name,
	host,
	port,
	protocol,
	username,
	password,
	client_id,
	keep_alive,
	clean_session,
	reconnect_interval,
	connect_timeout,
	is_active,
	is_connected,
	last_connection,
	last_error,
	created_at,
	updated_at
`

func scanBroker(row interface{ Scan(...interface{}) error }) (*models.Broker, error) {
	var b models.Broker
	var username, password, clientID, lastError sql.NullString
	var lastConnection sql.NullTime

	err := row.Scan(
		&b.BrokerID,
		&b.Name,
		&b.Host,
		&b.Port,
		&b.Protocol,
		&username,
		&password,
		&clientID,
		&b.KeepAlive,
		&b.CleanSession,
		&b.ReconnectInterval,
		&b.ConnectTimeout,
		&b.IsActive,
		&b.IsConnected,
		&lastConnection,
		&lastError,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if username.Valid {
		b.Username = &username.String
	}
	if password.Valid {
		b.Password = &password.String
	}
	if clientID.Valid {
		b.ClientID = &clientID.String
	}
	if lastError.Valid {
		b.LastError = &lastError.String
	}
	if lastConnection.Valid {
		b.LastConnection = &lastConnection.Time
	}

	return &b, nil
}

// GetBroker fetches one broker by id.
func (r *BrokersRepository) GetBroker(ctx context.Context, brokerID string) (*models.Broker, error) {
	if brokerID == "" {
		return nil, fmt.Errorf("broker_id is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM mqtt_brokers WHERE broker_id = $1`, brokerColumns)

	broker, err := scanBroker(r.db.QueryRowContext(ctx, query, brokerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("broker not found: %s", brokerID)
		}
		return nil, fmt.Errorf("failed to get broker: %w", err)
	}

	return broker, nil
}

// GetActiveBrokers returns every broker flagged active, ordered by name so
// startup order is stable.
func (r *BrokersRepository) GetActiveBrokers(ctx context.Context) ([]*models.Broker, error) {
	query := fmt.Sprintf(`SELECT %s FROM mqtt_brokers WHERE is_active = true ORDER BY name`, brokerColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active brokers: %w", err)
	}
	defer rows.Close()

	brokers := []*models.Broker{}
	for rows.Next() {
		broker, err := scanBroker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broker: %w", err)
		}
		brokers = append(brokers, broker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate brokers: %w", err)
	}

	return brokers, nil
}

// SetConnected marks a broker connected, stamps last_connection and clears
// last_error.
func (r *BrokersRepository) SetConnected(ctx context.Context, brokerID string, at time.Time) error {
	if brokerID == "" {
		return fmt.Errorf("broker_id is required")
	}

	query := `
		UPDATE mqtt_brokers
		SET is_connected = true,
		    last_connection = $1,
		    last_error = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE broker_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, at, brokerID); err != nil {
		return fmt.Errorf("failed to mark broker connected: %w", err)
	}
	return nil
}

// SetDisconnected marks a broker disconnected.
func (r *BrokersRepository) SetDisconnected(ctx context.Context, brokerID string) error {
	if brokerID == "" {
		return fmt.Errorf("broker_id is required")
	}

	query := `
		UPDATE mqtt_brokers
		SET is_connected = false,
		    updated_at = CURRENT_TIMESTAMP
		WHERE broker_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, brokerID); err != nil {
		return fmt.Errorf("failed to mark broker disconnected: %w", err)
	}
	return nil
}

// SetLastError records a transport error without touching is_connected;
// the connected flag is driven only by connect/close events.
func (r *BrokersRepository) SetLastError(ctx context.Context, brokerID string, errText string) error {
	if brokerID == "" {
		return fmt.Errorf("broker_id is required")
	}

	query := `
		UPDATE mqtt_brokers
		SET last_error = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE broker_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, errText, brokerID); err != nil {
		return fmt.Errorf("failed to record broker error: %w", err)
	}
	return nil
}

// ResetAllConnected bulk-clears is_connected on shutdown.
func (r *BrokersRepository) ResetAllConnected(ctx context.Context) error {
	query := `
		UPDATE mqtt_brokers
		SET is_connected = false,
		    updated_at = CURRENT_TIMESTAMP
		WHERE is_connected = true
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to reset broker connection flags: %w", err)
	}
	return nil
}
