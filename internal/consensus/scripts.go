package consensus

// voteScript atomically records a vote and recomputes terminal status,
// mirroring internal/lock's use of Lua CAS scripts in place of client-side
// WATCH/MULTI retry loops for the same reason: the read-tally-write
// sequence must not race with a concurrent vote.
//
// KEYS[1] = consensus:req:<id> (request hash)
// KEYS[2] = consensus:req:<id>:votes (per-agent vote hash)
// KEYS[3] = consensus:pending (sorted set, member removed once terminal)
// ARGV[1] = agent id
// ARGV[2] = "1" for approve, "0" for reject
// ARGV[3] = comment
// ARGV[4] = request id (the ZREM member)
//
// Returns {ok, status, approvals, rejections}. ok=0 with status="not_pending"
// or "already_voted" signals the two rejectable conditions; the Go caller
// translates those into ErrNotPending / ErrAlreadyVoted.
const voteScript = `
local status = redis.call('HGET', KEYS[1], 'status')
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
  return {0, 'already_voted', 0, 0}
end
if status ~= 'pending' then
  return {0, 'not_pending', 0, 0}
end

redis.call('HSET', KEYS[2], ARGV[1], ARGV[2] .. ':' .. ARGV[3])

local required = tonumber(redis.call('HGET', KEYS[1], 'required_approvals'))
local all = redis.call('HGETALL', KEYS[2])
local approvals = 0
local rejections = 0
for i = 1, #all, 2 do
  local v = all[i + 1]
  if string.sub(v, 1, 1) == '1' then
    approvals = approvals + 1
  else
    rejections = rejections + 1
  end
end

local newStatus = 'pending'
if approvals >= required then
  newStatus = 'approved'
elseif rejections * 2 > required then
  newStatus = 'rejected'
end

if newStatus ~= 'pending' then
  redis.call('HSET', KEYS[1], 'status', newStatus)
  redis.call('ZREM', KEYS[3], ARGV[4])
end

return {1, newStatus, approvals, rejections}
`

// finalizeIfPendingScript moves a request straight to a terminal status
// without going through the vote tally, used by both Cancel (status
// "canceled") and ExpireSweep (status "timeout"). Both are CAS'd against
// "pending" so a request that became approved/rejected a moment earlier
// cannot be clobbered.
//
// KEYS[1] = consensus:req:<id>
// KEYS[2] = consensus:pending
// ARGV[1] = request id (ZREM member)
// ARGV[2] = target status
const finalizeIfPendingScript = `
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'pending' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`
