package lock

// These Lua scripts give each lock operation the check-then-write atomicity
// spec §4.C's "atomic compare-and-set" contract requires, the same
// scripted-CAS idiom jordigilh-kubernaut's Redis-backed packages use instead
// of a client-side WATCH/MULTI retry loop. Redis's own key expiry (PEXPIRE)
// does the "absent or expired" check for free: an expired lock key simply
// no longer EXISTS, so acquire never has to compare timestamps by hand.

// acquireScript: KEYS[1]=lock key. ARGV = owner, acquiredAtMs, ttlMs, leaseID.
// Returns {1, leaseID} on success, or {0, currentOwner, remainingTTLMs}.
const acquireScript = `
local exists = redis.call('EXISTS', KEYS[1])
if exists == 1 then
  local owner = redis.call('HGET', KEYS[1], 'owner')
  local pttl = redis.call('PTTL', KEYS[1])
  return {0, owner, pttl}
end
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'acquired_at', ARGV[2], 'ttl', ARGV[3], 'lease_id', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return {1, ARGV[4]}
`

// renewScript: KEYS[1]=lock key. ARGV = owner, leaseID, newTTLMs.
// Returns 1 on success, 0 if owner/lease mismatch ("stale" per spec §4.C).
const renewScript = `
local owner = redis.call('HGET', KEYS[1], 'owner')
local lease = redis.call('HGET', KEYS[1], 'lease_id')
if owner == ARGV[1] and lease == ARGV[2] then
  redis.call('HSET', KEYS[1], 'ttl', ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return 1
end
return 0
`

// releaseScript: KEYS[1]=lock key. ARGV = owner, leaseID.
// Returns 1 on success, 0 if owner/lease mismatch.
const releaseScript = `
local owner = redis.call('HGET', KEYS[1], 'owner')
local lease = redis.call('HGET', KEYS[1], 'lease_id')
if owner == ARGV[1] and lease == ARGV[2] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

// releaseByOwnerScript: KEYS[1]=lock key. ARGV = owner. Used by the Agent
// Registry's janitor to release a dead agent's locks, which has no lease id
// to present (the agent that would know it is gone). Returns 1 on success,
// 0 if the key is absent or now owned by someone else (a race the caller
// treats as "already handled").
const releaseByOwnerScript = `
local owner = redis.call('HGET', KEYS[1], 'owner')
if owner == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

// forceAcquireScript: KEYS[1]=lock key. ARGV = owner, acquiredAtMs, ttlMs,
// leaseID, reason. Unconditionally overwrites the lock; returns the
// previous owner (or false/nil if none) so callers can notify them.
const forceAcquireScript = `
local prevOwner = redis.call('HGET', KEYS[1], 'owner')
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'acquired_at', ARGV[2], 'ttl', ARGV[3], 'lease_id', ARGV[4], 'forced', '1', 'reason', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return prevOwner
`
