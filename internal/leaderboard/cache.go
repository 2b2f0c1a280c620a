package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/codejudge/internal/domain"
)

// recordScript keeps the best score of a user on a problem, re-sums the user's
// total and upserts it into the ranking. Both keys get the new expiry.
// A cold ranking is left alone, the next read rebuilds it. A ranking whose
// member lost its problems hash cannot be re-summed and is dropped.
//
// KEYS[1] problems hash, KEYS[2] ranking sorted set.
// ARGV[1] username, ARGV[2] problem id, ARGV[3] score, ARGV[4] ttl in milliseconds.
// Returns the new total, or -1 when the ranking is cold, or -2 when it was dropped.
var recordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then
	return -1
end
if redis.call('EXISTS', KEYS[1]) == 0 and redis.call('ZSCORE', KEYS[2], ARGV[1]) then
	redis.call('DEL', KEYS[2])
	return -2
end

local current = redis.call('HGET', KEYS[1], ARGV[2])
if (not current) or tonumber(ARGV[3]) > tonumber(current) then
	redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
end

local total = 0
for _, v in ipairs(redis.call('HVALS', KEYS[1])) do
	total = total + tonumber(v)
end

redis.call('ZADD', KEYS[2], total, ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return total
`)

// cache is the disposable projection of the authoritative leaderboard.
// Keys of one contest share the {contestID} hash tag so they live in one cluster slot.
type cache struct {
	redis  redis.UniversalClient
	prefix string
}

func (c cache) rankingKey(contestID string) string {
	return fmt.Sprintf("%scontest:{%s}:leaderboard", c.keyPrefix(), contestID)
}

func (c cache) problemsKey(contestID, username string) string {
	return fmt.Sprintf("%scontest:{%s}:user:%s:problems", c.keyPrefix(), contestID, username)
}

func (c cache) publishKey(contestID string) string {
	return fmt.Sprintf("%scontest:{%s}:published", c.keyPrefix(), contestID)
}

func (c cache) keyPrefix() string {
	if c.prefix == "" {
		return ""
	}
	return c.prefix + ":"
}

const (
	recordCold    = -1
	recordDropped = -2
)

// record returns the cached total of the user, or recordCold / recordDropped.
func (c cache) record(ctx context.Context, contestID, username, problemID string, score int, ttl time.Duration) (int64, error) {
	keys := []string{c.problemsKey(contestID, username), c.rankingKey(contestID)}
	total, err := recordScript.Run(ctx, c.redis, keys, username, problemID, score, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("record score: %w", err)
	}
	return total, nil
}

func (c cache) size(ctx context.Context, contestID string) (int64, error) {
	n, err := c.redis.ZCard(ctx, c.rankingKey(contestID)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard: %w", err)
	}
	return n, nil
}

// load replaces the cached projection of a contest with entries.
func (c cache) load(ctx context.Context, contestID string, entries []domain.LeaderboardEntry, ttl time.Duration) error {
	ranking := c.rankingKey(contestID)

	_, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, ranking)

		for _, e := range entries {
			if len(e.ProblemScores) == 0 {
				continue
			}

			problems := c.problemsKey(contestID, e.Username)
			fields := make(map[string]any, len(e.ProblemScores))
			for _, ps := range e.ProblemScores {
				fields[ps.ProblemID] = ps.Score
			}

			p.Del(ctx, problems)
			p.HSet(ctx, problems, fields)
			p.PExpire(ctx, problems, ttl)
			p.ZAdd(ctx, ranking, redis.Z{Score: float64(e.TotalScore), Member: e.Username})
		}

		p.PExpire(ctx, ranking, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}

	return nil
}

// errInconsistent reports a ranked member whose problem scores do not add up to its total,
// usually because its problems hash expired before the ranking did.
var errInconsistent = stderrors.New("cached leaderboard inconsistent")

type cachedRow struct {
	username string
	total    int
	problems map[string]int
}

// page reads the rows [offset, offset+limit) of the ranking with each user's problem scores.
// When refresh is set the expiry of every key read is pushed back to ttl.
// A row whose problem scores do not sum to its total fails the read with errInconsistent.
func (c cache) page(ctx context.Context, contestID string, offset, limit int64, refresh bool, ttl time.Duration) ([]cachedRow, error) {
	ranking := c.rankingKey(contestID)

	zs, err := c.redis.ZRevRangeWithScores(ctx, ranking, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(zs))
	_, err = c.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		if refresh {
			p.PExpire(ctx, ranking, ttl)
		}
		for i, z := range zs {
			problems := c.problemsKey(contestID, z.Member.(string))
			cmds[i] = p.HGetAll(ctx, problems)
			if refresh {
				p.PExpire(ctx, problems, ttl)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read problem scores: %w", err)
	}

	rows := make([]cachedRow, len(zs))
	for i, z := range zs {
		rows[i] = cachedRow{
			username: z.Member.(string),
			total:    int(z.Score),
			problems: make(map[string]int),
		}

		sum := 0
		for problemID, v := range cmds[i].Val() {
			score, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("problem score %s of %s: %w", problemID, rows[i].username, err)
			}
			rows[i].problems[problemID] = score
			sum += score
		}

		if sum != rows[i].total {
			return nil, fmt.Errorf("%w: %s has total %d, problems sum to %d", errInconsistent, rows[i].username, rows[i].total, sum)
		}
	}

	return rows, nil
}

// markPublished reports whether the caller won the right to publish the contest leaderboard for interval.
func (c cache) markPublished(ctx context.Context, contestID string, at time.Time, interval time.Duration) (bool, error) {
	ok, err := c.redis.SetNX(ctx, c.publishKey(contestID), at.UnixMilli(), interval).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}
