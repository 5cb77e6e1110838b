package global

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/lock"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/notify"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/spam"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
	rlibs "github.com/Laisky/laisky-blog-moderation/library/db/redis"
	"github.com/Laisky/laisky-blog-moderation/library/db/sql/kv"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

const (
	defaultLockTTL     = 30 * time.Second
	lockTTLMargin      = 5 * time.Second
	defaultCacheTTL    = 24 * time.Hour
	defaultCacheSize   = 4096
	defaultPhotoExpiry = 24 * time.Hour
	defaultAkismetQPS  = 0
)

// Services holds every component a command may need.
type Services struct {
	Store       store.CommentStore
	Queue       queue.Queue
	Consumer    queue.Consumer
	Inspector   queue.Inspector
	Locker      lock.Locker
	Coordinator *moderation.Coordinator
	Submitter   *moderation.Submitter
	Reviewer    *moderation.Reviewer
	// Redis is nil unless settings.db.redis.addr is set
	Redis *rlibs.DB
	// Verdicts is the SQL verdict cache table, nil unless the classifier caches there
	Verdicts *kv.Kv

	closers []closer
}

// Close releases every connection, in reverse order of setup.
func (s *Services) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Logger.Warn("close service", zap.Error(err))
		}
	}
	s.closers = nil
}

// SetupServices builds the moderation pipeline from settings.
// On error every connection opened so far is closed.
func SetupServices(ctx context.Context) (*Services, error) {
	svc := new(Services)
	if err := svc.setup(ctx); err != nil {
		svc.Close(ctx)
		return nil, err
	}

	return svc, nil
}

func (s *Services) setup(ctx context.Context) (err error) {
	var closeStore closer
	if s.Store, closeStore, err = SetupStore(ctx); err != nil {
		return err
	}
	s.closers = append(s.closers, closeStore)

	if RedisConfigured() {
		if s.Redis, err = SetupRedis(ctx); err != nil {
			return err
		}
		s.closers = append(s.closers, func(context.Context) error { return s.Redis.Close() })
	}

	if err = s.setupQueue(); err != nil {
		return err
	}
	if err = s.setupLocker(); err != nil {
		return err
	}

	classifier, verdicts, err := setupClassifier(s.Redis, s.Store)
	if err != nil {
		return err
	}
	s.Verdicts = verdicts

	gateway, err := setupGateway()
	if err != nil {
		return err
	}
	photos, err := setupPhotoLinker()
	if err != nil {
		return err
	}

	if s.Coordinator, err = moderation.NewCoordinator(moderation.CoordinatorConfig{
		Store:       s.Store,
		Classifier:  classifier,
		Gateway:     gateway,
		Queue:       s.Queue,
		Locker:      s.Locker,
		Photos:      photos,
		AdminEmail:  gconfig.Shared.GetString("settings.moderation.admin_email"),
		MaxRequeues: gconfig.Shared.GetInt("settings.moderation.max_requeues"),
	}); err != nil {
		return errors.Wrap(err, "new coordinator")
	}

	if s.Submitter, err = moderation.NewSubmitter(s.Store, s.Queue,
		gconfig.Shared.GetString("settings.moderation.review_base_url"), nil); err != nil {
		return errors.Wrap(err, "new submitter")
	}
	s.Reviewer = moderation.NewReviewer(s.Store, s.Locker, nil)

	return nil
}

func queueOptions() []queue.Option {
	opts := []queue.Option{queue.WithLogger(log.Logger.Named("queue"))}
	if n := gconfig.Shared.GetInt("settings.moderation.workers"); n > 0 {
		opts = append(opts, queue.WithWorkers(n))
	}
	if n := gconfig.Shared.GetInt("settings.moderation.max_deliveries"); n > 0 {
		opts = append(opts, queue.WithMaxDeliveries(n))
	}
	return opts
}

func (s *Services) setupQueue() error {
	switch backend := gconfig.Shared.GetString("settings.moderation.queue"); backend {
	case "", BackendMemory:
		q := queue.NewMemory(queueOptions()...)
		s.Queue, s.Consumer, s.Inspector = q, q, q
	case BackendRedis:
		if s.Redis == nil {
			return errors.New("redis queue needs settings.db.redis.addr")
		}
		q := queue.NewRedis(s.Redis, queueOptions()...)
		s.Queue, s.Consumer, s.Inspector = q, q, q
	default:
		return errors.Errorf("unknown queue %q", backend)
	}

	return nil
}

// setupLocker shares comment locks through redis whenever the queue does,
// so several worker processes exclude each other.
func (s *Services) setupLocker() error {
	if _, ok := s.Queue.(*queue.Redis); !ok {
		s.Locker = lock.NewKeyed()
		return nil
	}

	ttl := lockTTL(akismetTimeout())
	if ms := gconfig.Shared.GetInt("settings.moderation.lock_ttl_ms"); ms > 0 {
		ttl = time.Duration(ms) * time.Millisecond
	}

	locker, err := lock.NewRedis(s.Redis.Client(), ttl, lock.WithLogger(log.Logger.Named("comment_lock")))
	if err != nil {
		return errors.Wrap(err, "new redis lock")
	}
	s.Locker = locker
	return nil
}

// setupClassifier also returns the verdict table when scores are cached in the SQL store.
func akismetTimeout() time.Duration {
	if ms := gconfig.Shared.GetInt("settings.akismet.timeout_ms"); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return spam.DefaultAkismetTimeout
}

// lockTTL outlives the slowest classifier call, so a lease does not expire mid-classification.
func lockTTL(perAttempt time.Duration) time.Duration {
	if ttl := spam.AkismetWorstCase(perAttempt) + lockTTLMargin; ttl > defaultLockTTL {
		return ttl
	}
	return defaultLockTTL
}

func setupClassifier(rdb *rlibs.DB, st store.CommentStore) (spam.Classifier, *kv.Kv, error) {
	if gconfig.Shared.GetBool("settings.moderation.dry") {
		score := gconfig.Shared.GetInt("settings.moderation.dry_score")
		log.Logger.Warn("dry run, every comment scores the same", zap.Int("score", score))
		return spam.Static(score), nil, nil
	}

	qps := defaultAkismetQPS
	if n := gconfig.Shared.GetInt("settings.akismet.qps"); n > 0 {
		qps = n
	}

	akismet, err := spam.NewAkismet(spam.AkismetConfig{
		Key:      gconfig.Shared.GetString("settings.akismet.key"),
		BlogURL:  gconfig.Shared.GetString("settings.akismet.blog_url"),
		IsTest:   gconfig.Shared.GetBool("settings.akismet.is_test"),
		Timeout:  akismetTimeout(),
		QPS:      float64(qps),
		Endpoint: gconfig.Shared.GetString("settings.akismet.endpoint"),
		Logger:   log.Logger.Named("akismet"),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "new akismet")
	}

	ttl := defaultCacheTTL
	if sec := gconfig.Shared.GetInt("settings.akismet.cache_ttl_sec"); sec > 0 {
		ttl = time.Duration(sec) * time.Second
	}

	var (
		cache    spam.VerdictCache
		verdicts *kv.Kv
	)
	if rdb != nil {
		cache = spam.NewRedisVerdictCache(rdb.Client(), ttl)
	} else if sqlStore, ok := st.(*store.Gorm); ok {
		if verdicts, err = kv.NewKv(sqlStore.DB()); err != nil {
			return nil, nil, errors.Wrap(err, "new verdict table")
		}
		cache = spam.NewKVVerdictCache(verdicts, ttl)
	} else {
		size := defaultCacheSize
		if n := gconfig.Shared.GetInt("settings.akismet.cache_size"); n > 0 {
			size = n
		}
		cache = spam.NewLRUVerdictCache(size, ttl)
	}

	return spam.NewCached(akismet, cache, log.Logger.Named("spam_cache")), verdicts, nil
}

// parseChatIDs reads telegram chat ids, which yaml may hand over as numbers or strings.
func parseChatIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid telegram chat id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setupGateway() (notify.Gateway, error) {
	if gconfig.Shared.GetBool("settings.moderation.dry") {
		return notify.NewLog(log.Logger.Named("notify_dry")), nil
	}

	var (
		notifiers []notify.AdminNotifier
		senders   []notify.EmailSender
	)

	if token := gconfig.Shared.GetString("settings.telegram.token"); token != "" {
		chats, err := parseChatIDs(gconfig.Shared.GetStringSlice("settings.telegram.admin_chats"))
		if err != nil {
			return nil, err
		}

		tg, err := notify.NewTelegram(token, gconfig.Shared.GetString("settings.telegram.api"), chats)
		if err != nil {
			return nil, errors.Wrap(err, "new telegram")
		}
		notifiers = append(notifiers, tg)
	}

	if host := gconfig.Shared.GetString("settings.smtp.host"); host != "" {
		from := gconfig.Shared.GetString("settings.smtp.from")
		if from == "" {
			from = gconfig.Shared.GetString("settings.moderation.admin_email")
		}

		mailer, err := notify.NewMailer(notify.SMTPConfig{
			Host: host,
			Port: gconfig.Shared.GetInt("settings.smtp.port"),
			User: gconfig.Shared.GetString("settings.smtp.user"),
			Pwd:  gconfig.Shared.GetString("settings.smtp.pwd"),
			From: from,
		})
		if err != nil {
			return nil, errors.Wrap(err, "new mailer")
		}
		senders = append(senders, mailer)
	}

	if len(notifiers) == 0 && len(senders) == 0 {
		log.Logger.Warn("no notification channel configured, review requests are only logged")
		return notify.NewLog(log.Logger.Named("notify")), nil
	}

	return notify.NewMulti(notifiers, senders), nil
}

func setupPhotoLinker() (notify.PhotoLinker, error) {
	bucket := gconfig.Shared.GetString("settings.photos.bucket")
	if bucket == "" {
		return nil, nil
	}

	expiry := defaultPhotoExpiry
	if sec := gconfig.Shared.GetInt("settings.photos.expiry_sec"); sec > 0 {
		expiry = time.Duration(sec) * time.Second
	}

	linker, err := notify.NewMinioPhotoLinker(notify.MinioConfig{
		Endpoint:  gconfig.Shared.GetString("settings.photos.endpoint"),
		AccessKey: gconfig.Shared.GetString("settings.photos.access_key"),
		SecretKey: gconfig.Shared.GetString("settings.photos.secret_key"),
		Bucket:    bucket,
		Secure:    gconfig.Shared.GetBool("settings.photos.secure"),
		Region:    gconfig.Shared.GetString("settings.photos.region"),
		Expiry:    expiry,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new photo linker")
	}
	return linker, nil
}
