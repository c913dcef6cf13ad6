package redis

import "github.com/redis/go-redis/v9"

// Script replies are {status, value} pairs so the caller can tell a no-op from a write.
const (
	replyOK          = "ok"
	replyNoop        = "noop"
	replyExists      = "exists"
	replyNotFound    = "not_found"
	replyNotJoinable = "not_joinable"
	replyInvalid     = "invalid"
)

// KEYS[1] game hash. ARGV[1] target status, ARGV[2] now in unix millis.
var updateStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return {'not_found', ''}
end
local order = {['waiting'] = 0, ['in-progress'] = 1, ['completed'] = 2}
local c, t = order[cur], order[ARGV[1]]
if t <= c then
	return {'noop', cur}
end
if t ~= c + 1 then
	return {'invalid', cur}
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
if ARGV[1] == 'in-progress' then
	redis.call('HSET', KEYS[1], 'startedAt', ARGV[2])
elseif ARGV[1] == 'completed' then
	redis.call('HSET', KEYS[1], 'completedAt', ARGV[2])
end
return {'ok', ARGV[1]}
`)

// KEYS[1] game hash, KEYS[2] identity index hash, KEYS[3] players list.
// ARGV[1] identity key, ARGV[2] participant id, ARGV[3] encoded player.
var appendPlayerScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return {'not_found', ''}
end
local existing = redis.call('HGET', KEYS[2], ARGV[1])
if existing then
	return {'exists', existing}
end
if status ~= 'waiting' then
	return {'not_joinable', ''}
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[3])
return {'ok', ARGV[2]}
`)

// KEYS[1] participant hash. ARGV[1] score or empty, ARGV[2] "1" to finish, ARGV[3] now in unix millis.
var updateParticipantScript = redis.NewScript(`
local game = redis.call('HGET', KEYS[1], 'gameId')
if not game then
	return {'not_found', ''}
end
local changed = false
if ARGV[1] ~= '' then
	local cur = tonumber(redis.call('HGET', KEYS[1], 'score') or '0')
	if tonumber(ARGV[1]) > cur then
		redis.call('HSET', KEYS[1], 'score', ARGV[1])
		changed = true
	end
end
if ARGV[2] == '1' then
	if redis.call('HSETNX', KEYS[1], 'endedAt', ARGV[3]) == 1 then
		changed = true
	end
end
if changed then
	return {'ok', game}
end
return {'noop', game}
`)
