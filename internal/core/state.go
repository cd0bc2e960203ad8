package core

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// PingTimeout is how long a session may go without sending any packet
// before the sweeper drops it. The client pings every ~8s when idle.
const PingTimeout = 300 * time.Second

// MaxMatches bounds concurrently open multiplayer rooms.
const MaxMatches = 64

// State is the whole in-memory world: every session, channel and match.
type State struct {
	// LoginMu serializes the login path end to end, so two racing
	// logins for one account cannot both pass the name-collision check.
	LoginMu sync.Mutex

	mu       sync.RWMutex
	byToken  map[string]*Session
	byID     map[int32]*Session
	byName   map[string]*Session // keyed by safe name
	channels map[string]*Channel
	matches  [MaxMatches]*Match

	Bot *Session

	pwMu    sync.Mutex
	pwCache map[string]string // bcrypt hash → last verified md5

	botMu       sync.Mutex
	botPresence []byte
	botStats    []byte
	botStatus   string
}

// NewState builds an empty world with the bot session already online.
func NewState() *State {
	st := &State{
		byToken:  make(map[string]*Session),
		byID:     make(map[int32]*Session),
		byName:   make(map[string]*Session),
		channels: make(map[string]*Channel),
		pwCache:  make(map[string]string),
	}

	bot := newSession(store.BotID, "BanchoBot", "")
	bot.priv = osu.PrivUnrestricted | osu.PrivVerified
	bot.Country = "ca"
	bot.CountryCode = countryCode("ca")
	bot.status.Action = osu.ActionTesting
	bot.TouchRecv(time.Now())
	st.Bot = bot
	st.byID[bot.ID] = bot
	st.byName[bot.SafeName] = bot
	st.RerollBotStatus()
	return st
}

// VerifyPassword checks the client's md5 against the stored bcrypt
// hash, caching successes so repeat logins skip the expensive compare.
// Failures are never cached.
func (st *State) VerifyPassword(pwBcrypt, pwMD5 string) error {
	st.pwMu.Lock()
	cached, ok := st.pwCache[pwBcrypt]
	st.pwMu.Unlock()
	if ok {
		if cached == pwMD5 {
			return nil
		}
		return fmt.Errorf("password mismatch")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(pwBcrypt), []byte(pwMD5)); err != nil {
		return fmt.Errorf("password mismatch")
	}
	st.pwMu.Lock()
	st.pwCache[pwBcrypt] = pwMD5
	st.pwMu.Unlock()
	return nil
}

var botStatuses = []string{
	"the source of all good scores",
	"out for a walk",
	"beating the #1 play",
	"dropping DT on everything",
	"afk, probably",
}

// RerollBotStatus picks a fresh bot activity line and invalidates the
// cached bot frames.
func (st *State) RerollBotStatus() {
	st.botMu.Lock()
	st.botStatus = botStatuses[rand.Intn(len(botStatuses))]
	st.botPresence = nil
	st.botStats = nil
	st.botMu.Unlock()
}

// BotPresencePacket returns the (cached) bot presence frame. The bot
// renders with the highest possible rank so it sorts above everyone.
func (st *State) BotPresencePacket() []byte {
	st.botMu.Lock()
	defer st.botMu.Unlock()
	if st.botPresence == nil {
		st.botPresence = packet.WriteUserPresence(packet.UserPresence{
			UserID:      st.Bot.ID,
			Name:        st.Bot.Name,
			UTCOffset:   -5,
			CountryCode: st.Bot.CountryCode,
			ClientPrivs: osu.ClientPrivPlayer,
			GlobalRank:  0,
		})
	}
	return st.botPresence
}

// BotStatsPacket returns the (cached) bot stats frame.
func (st *State) BotStatsPacket() []byte {
	st.botMu.Lock()
	defer st.botMu.Unlock()
	if st.botStats == nil {
		st.botStats = packet.WriteUserStats(packet.UserStats{
			UserID:   st.Bot.ID,
			Action:   osu.ActionTesting,
			InfoText: st.botStatus,
			Accuracy: 1,
		})
	}
	return st.botStats
}

// countryCode maps an ISO 3166-1 alpha-2 code to the client's numeric
// country enum.
func countryCode(iso string) uint8 {
	if n, ok := countryCodes[iso]; ok {
		return n
	}
	return 0
}
