package audit

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

type AuditLog struct {
	Timestamp time.Time
	RequestID string
	ActorID   string
	OldStatus string
	NewStatus string
	Endpoint  string
	Request   string
	Message   string
}

type AuditPoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type AuditLogProcessor interface {
	Process(batch []AuditLog) error
}

type DBProcessor struct {
	db *sqlx.DB
}

func NewDBProcessor(db *sqlx.DB) *DBProcessor {
	return &DBProcessor{db: db}
}

func (p *DBProcessor) Process(batch []AuditLog) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO audit_logs (timestamp, request_id, actor_id, old_status, new_status, endpoint, request, message) VALUES `)

	params := make([]interface{}, 0, len(batch)*8)
	for i, rec := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?,?)")
		params = append(params, rec.Timestamp.UTC(), rec.RequestID, rec.ActorID, rec.OldStatus, rec.NewStatus, rec.Endpoint, rec.Request, rec.Message)
	}
	_, err := p.db.Exec(p.db.Rebind(sb.String()), params...)
	if err != nil {
		return fmt.Errorf("DBProcessor error: %w", err)
	}
	return nil
}

// StdoutProcessor prints records whose message contains Filter (case-insensitive).
type StdoutProcessor struct {
	Filter string
	Out    io.Writer
}

func (p *StdoutProcessor) Process(batch []AuditLog) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	for _, rec := range batch {
		if p.Filter != "" &&
			!strings.Contains(strings.ToLower(rec.Message), strings.ToLower(p.Filter)) {
			continue
		}
		fmt.Fprintf(out, "AUDIT: %s | Request: %s | Actor: %s | %s -> %s | Msg: %s\n",
			rec.Timestamp.Format(time.RFC3339), rec.RequestID, rec.ActorID, rec.OldStatus, rec.NewStatus, rec.Message)
	}
	return nil
}

type AuditWorkerPool struct {
	inputCh    chan AuditLog
	processors []AuditLogProcessor
	batchSize  int
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewAuditWorkerPool(cfg AuditPoolConfig, processors ...AuditLogProcessor) *AuditWorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &AuditWorkerPool{
		inputCh:    make(chan AuditLog, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
	}
}

func (p *AuditWorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *AuditWorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()
	var batch []AuditLog
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.processBatch(batch)
			}
			return
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				p.processBatch(batch)
				batch = nil
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *AuditWorkerPool) drain(batch []AuditLog) []AuditLog {
	for {
		select {
		case rec := <-p.inputCh:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

func (p *AuditWorkerPool) processBatch(batch []AuditLog) {
	for _, proc := range p.processors {
		if err := proc.Process(batch); err != nil {
			log.Printf("Error processing batch: %v", err)
		}
	}
}

// Log never blocks the caller; records are dropped when the channel is full.
func (p *AuditWorkerPool) Log(record AuditLog) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	select {
	case p.inputCh <- record:
	default:
		log.Println("Audit log channel full, dropping log")
	}
}

// Wait blocks until every worker has flushed and exited after ctx cancellation.
func (p *AuditWorkerPool) Wait() {
	p.wg.Wait()
}

func (p *AuditWorkerPool) Shutdown(cancelFunc context.CancelFunc) {
	cancelFunc()
	p.Wait()
}
