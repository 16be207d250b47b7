package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/juju/loggo"
	"github.com/juju/mgo/v2"

	"github.com/bakeryqueue/core/config"
	"github.com/bakeryqueue/core/httpqueue"
	"github.com/bakeryqueue/core/mgojournal"
	"github.com/bakeryqueue/core/notify"
	"github.com/bakeryqueue/core/queue"
	"github.com/bakeryqueue/core/sqljournal"
)

var (
	configPath = flag.String("config", "queue-server.yaml", "path to the bakery configuration file")
	addr       = flag.String("http", ":8080", "address to serve HTTP on")
)

var logger = loggo.GetLogger("queue-server")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "queue-server: %s\n", err)
		os.Exit(1)
	}
}

type configSource struct {
	cfg *config.Config
}

func (s configSource) Config(bakeryID int) (queue.Config, error) {
	for _, b := range s.cfg.Bakeries {
		if b.ID == bakeryID {
			return queue.Config{
				BakeryID:         b.ID,
				BreadTypeIDs:     b.BreadTypeIDs,
				PrepTimePerBread: b.PrepTimePerBread,
				BakingTimeS:      b.BakingTimeS,
				TimeoutS:         b.TimeoutS,
			}, nil
		}
	}
	return queue.Config{}, fmt.Errorf("bakery %d not configured", bakeryID)
}

// logNotifier is the default notify.Notifier: it logs every event rather
// than delivering it anywhere. The actual transport (SMS, push, a display
// bus) is a deployment concern; wire a real Notifier in by swapping this
// out where the Pool is constructed below.
type logNotifier struct{}

func (logNotifier) Notify(ctx context.Context, e notify.Event) error {
	logger.Infof("notify: %s bakery=%d payload=%+v", e.Kind, e.BakeryID, e.Payload)
	return nil
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	journal, closeJournal, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("cannot open journal: %w", err)
	}
	defer closeJournal()

	notifyPool := notify.NewPool(notify.PoolParams{Notifier: logNotifier{}})
	defer notifyPool.Close()

	q := queue.NewQueue(queue.QueueParams{
		Journal:  journal,
		Timezone: cfg.Location(),
		Notifier: notifyPool,
	})

	bakeryIDs := func() []int {
		ids := make([]int, len(cfg.Bakeries))
		for i, b := range cfg.Bakeries {
			ids[i] = b.ID
		}
		return ids
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.RunDailyLifecycle(ctx, bakeryIDs)

	mux := httpqueue.NewServeMux(q, configSource{cfg}, httpqueue.AllowAll)
	logger.Infof("listening on %s", *addr)
	return http.ListenAndServe(*addr, mux)
}

func openJournal(cfg *config.Config) (queue.Journal, func(), error) {
	switch cfg.Storage {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store := sqljournal.New(sqljournal.Params{DB: db, Timezone: cfg.Location()})
		return store, func() { store.Close(); db.Close() }, nil
	case "mongo":
		session, err := mgo.Dial(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		coll := session.DB("").C("bakery_queue_snapshot")
		if err := mgojournal.EnsureIndex(coll); err != nil {
			session.Close()
			return nil, nil, err
		}
		store := mgojournal.New(mgojournal.Params{Collection: coll, Timezone: cfg.Location()})
		return store, func() { session.Close() }, nil
	default:
		return queue.NewMemJournal(), func() {}, nil
	}
}
