package cmd

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/spam"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateModerationConfig(get, &validationErrs)
	validateRedisConfig(get, &validationErrs)
	validateDBConfig(get, &validationErrs)
	validateAkismetConfig(get, &validationErrs)
	validateNotifyConfig(get, &validationErrs)
	validatePhotosConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateModerationConfig validates pipeline backends, worker sizing, and the review link base.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateModerationConfig(get configGetter, errs *[]string) {
	validateOptionalEnum(get, "settings.moderation.store", []string{"memory", "mongo", "postgres", "sqlite"}, errs)
	validateOptionalEnum(get, "settings.moderation.queue", []string{"memory", "redis"}, errs)
	validateOptionalIntMin(get, "settings.moderation.workers", 1, errs)
	validateOptionalIntMin(get, "settings.moderation.max_deliveries", 1, errs)
	validateOptionalIntMin(get, "settings.moderation.max_requeues", 0, errs)
	validateOptionalIntMin(get, "settings.moderation.lock_ttl_ms", 1, errs)
	validateOptionalBool(get, "settings.moderation.dry", errs)
	validateOptionalIntMin(get, "settings.moderation.dry_score", 0, errs)
	validateOptionalEmail(get, "settings.moderation.admin_email", errs)
	validateOptionalURL(get, "settings.moderation.review_base_url", errs)

	if queueRaw := get("settings.moderation.queue"); queueRaw != nil {
		backend, parseErr := parseStrictString(queueRaw)
		if parseErr == nil && strings.TrimSpace(backend) == "redis" && get("settings.db.redis.addr") == nil {
			appendValidationError(errs, "settings.moderation.queue redis requires settings.db.redis.addr")
		}
	}
}

// validateRedisConfig validates redis-related startup configuration values.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateRedisConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.db.redis.addr", errs)
	validateOptionalIntMin(get, "settings.db.redis.db", 0, errs)
}

// validateDBConfig validates the comment store connections.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateDBConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.db.mongo.addr", errs)
	validateOptionalStringNonEmpty(get, "settings.db.mongo.db", errs)
	validateOptionalStringNonEmpty(get, "settings.db.postgres.addr", errs)
	validateOptionalPort(get, "settings.db.postgres.port", errs)
	validateOptionalStringNonEmpty(get, "settings.db.postgres.db", errs)
	validateOptionalStringNonEmpty(get, "settings.db.sqlite.path", errs)

	storeRaw := get("settings.moderation.store")
	if storeRaw == nil {
		return
	}
	backend, parseErr := parseStrictString(storeRaw)
	if parseErr != nil {
		return
	}

	switch strings.TrimSpace(backend) {
	case "mongo":
		validateRequiredString(get, "settings.db.mongo.addr", errs)
		validateRequiredString(get, "settings.db.mongo.db", errs)
	case "postgres":
		validateRequiredString(get, "settings.db.postgres.addr", errs)
		validateRequiredString(get, "settings.db.postgres.db", errs)
	case "sqlite":
		validateRequiredString(get, "settings.db.sqlite.path", errs)
	}
}

// validateAkismetConfig validates the spam classifier settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateAkismetConfig(get configGetter, errs *[]string) {
	validateOptionalURL(get, "settings.akismet.blog_url", errs)
	validateOptionalURL(get, "settings.akismet.endpoint", errs)
	validateOptionalBool(get, "settings.akismet.is_test", errs)
	validateOptionalIntMin(get, "settings.akismet.timeout_ms", 1, errs)
	validateOptionalIntMin(get, "settings.akismet.qps", 0, errs)
	validateOptionalIntMin(get, "settings.akismet.cache_ttl_sec", 1, errs)
	validateOptionalIntMin(get, "settings.akismet.cache_size", 1, errs)

	dry := false
	if raw := get("settings.moderation.dry"); raw != nil {
		dry, _ = parseStrictBool(raw)
	}
	if !dry {
		validateRequiredString(get, "settings.akismet.key", errs)
		validateRequiredString(get, "settings.akismet.blog_url", errs)
		validateLockOutlivesAkismet(get, errs)
	}
}

// validateLockOutlivesAkismet rejects a comment lease shorter than the slowest classifier call,
// which would let a second worker classify the same comment.
func validateLockOutlivesAkismet(get configGetter, errs *[]string) {
	raw := get("settings.moderation.lock_ttl_ms")
	if raw == nil {
		return
	}
	lockMS, err := parseStrictInt(raw)
	if err != nil || lockMS < 1 {
		return
	}

	var timeout time.Duration
	if rawTimeout := get("settings.akismet.timeout_ms"); rawTimeout != nil {
		ms, err := parseStrictInt(rawTimeout)
		if err != nil || ms < 1 {
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	worst := spam.AkismetWorstCase(timeout)
	if time.Duration(lockMS)*time.Millisecond <= worst {
		appendValidationError(errs, "settings.moderation.lock_ttl_ms must exceed %d, the longest akismet call with retries",
			worst.Milliseconds())
	}
}

// validateNotifyConfig validates telegram and smtp settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateNotifyConfig(get configGetter, errs *[]string) {
	validateOptionalURL(get, "settings.telegram.api", errs)
	validateOptionalInt64Slice(get, "settings.telegram.admin_chats", errs)
	if get("settings.telegram.token") != nil {
		validateRequiredString(get, "settings.telegram.token", errs)
		if get("settings.telegram.admin_chats") == nil {
			appendValidationError(errs, "settings.telegram.admin_chats is required when settings.telegram.token is set")
		}
	}

	validateOptionalStringNonEmpty(get, "settings.smtp.host", errs)
	validateOptionalPort(get, "settings.smtp.port", errs)
	validateOptionalEmail(get, "settings.smtp.from", errs)
	if get("settings.smtp.host") != nil {
		validateRequiredString(get, "settings.moderation.admin_email", errs)
	}
}

// validatePhotosConfig validates the object storage used to link comment photos.
// It accepts a getter and an error collector pointer and appends validation errors.
func validatePhotosConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.photos.expiry_sec", 1, errs)
	validateOptionalBool(get, "settings.photos.secure", errs)
	if get("settings.photos.bucket") != nil {
		validateRequiredString(get, "settings.photos.bucket", errs)
		validateRequiredString(get, "settings.photos.endpoint", errs)
		if endpoint, parseErr := parseStrictString(get("settings.photos.endpoint")); parseErr == nil && !isValidHost(endpoint) {
			appendValidationError(errs, "settings.photos.endpoint must be a host without scheme")
		}
	}
}

// validateWebConfig validates the API signing secret and intake throttle.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.web.throttle.per_ip_qps", 1, errs)
	validateOptionalIntMin(get, "settings.web.throttle.per_ip_burst", 1, errs)
	validateOptionalIntMin(get, "settings.web.throttle.total_qps", 1, errs)
	validateOptionalIntMin(get, "settings.web.throttle.total_burst", 1, errs)

	raw := get("settings.web.secret")
	if raw == nil {
		return
	}

	secret, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "settings.web.secret must be a string")
		return
	}
	if len(strings.TrimSpace(secret)) < 16 {
		appendValidationError(errs, "settings.web.secret must be at least 16 characters")
	}
}

// validateRequiredString validates that a key is configured as a non-empty string.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateRequiredString(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		appendValidationError(errs, "%s is required", key)
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil || strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must be a non-empty string", key)
	}
}

// validateOptionalEnum validates an optionally configured string key against allowed values.
// It accepts a getter, the key, the allowed values, and an error collector pointer.
func validateOptionalEnum(get configGetter, key string, allowed []string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	normalized := strings.TrimSpace(value)
	for _, a := range allowed {
		if normalized == a {
			return
		}
	}
	appendValidationError(errs, "%s must be one of [%s]", key, strings.Join(allowed, ", "))
}

// validateOptionalPort validates an optionally configured TCP port.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalPort(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	port, parseErr := parseStrictInt(raw)
	if parseErr != nil || port < 1 || port > 65535 {
		appendValidationError(errs, "%s must be a port in [1, 65535]", key)
	}
}

// validateOptionalEmail validates an optionally configured email address.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalEmail(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(value)); err != nil {
		appendValidationError(errs, "%s must be a valid email address", key)
	}
}

// validateOptionalInt64Slice validates an optionally configured list of integer ids.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalInt64Slice(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	items, ok := raw.([]any)
	if !ok {
		if s, isStrings := raw.([]string); isStrings {
			items = make([]any, 0, len(s))
			for _, v := range s {
				items = append(items, v)
			}
		} else {
			appendValidationError(errs, "%s must be a list", key)
			return
		}
	}
	if len(items) == 0 {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	for i, item := range items {
		if _, parseErr := parseStrictInt64(item); parseErr != nil {
			appendValidationError(errs, "%s[%d] must be an integer", key, i)
		}
	}
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictInt64 parses a value as a strict int64.
// It accepts a raw value and returns the parsed int64 and an error when parsing fails.
func parseStrictInt64(value any) (int64, error) {
	parsed, err := parseStrictInt(value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int64(parsed), nil
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
