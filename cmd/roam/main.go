package main

import (
	"context"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roamlink/client"
	"roamlink/config"
	"roamlink/logger"
	"roamlink/proximity"
	"roamlink/session"
	"roamlink/tools"
	"roamlink/transport"
	"roamlink/transport/natsx"
	"roamlink/transport/wsx"
	"roamlink/wire"
)

// 环境变量：
// ROAM_ENDPOINT      (默认 ws://127.0.0.1:8080/session)
// ROAM_NATS_SERVERS  (默认 nats://127.0.0.1:4222)
// ROAM_KEY           (channel 模式必填)
// ROAM_USERNAME      (默认 roamer)
// ROAM_WORLD         (默认 plaza)
// ROAM_TRANSPORT     (ws | channel，默认 ws)
// ROAM_WANDER        (默认 true)
// ROAM_WANDER_MS     (默认 1000)
// ROAM_AVATAR        (k=v 逗号分隔，例如 hat=red,shirt=blue)

func main() {
	cfg := config.FromEnv()
	if cfg.Username == "" {
		cfg.Username = "roamer"
	}
	if cfg.WorldID == "" {
		cfg.WorldID = "plaza"
	}
	preferred := transport.KindWebSocket
	if tools.GetEnv("ROAM_TRANSPORT", "ws") == "channel" {
		preferred = transport.KindChannel
	}
	natsServers := strings.Split(tools.GetEnv("ROAM_NATS_SERVERS", "nats://127.0.0.1:4222"), ",")
	wander := tools.GetEnvBool("ROAM_WANDER", true)
	wanderMS := tools.GetEnvInt("ROAM_WANDER_MS", 1000)
	avatarMeta := tools.ParseMeta(tools.GetEnv("ROAM_AVATAR", ""))

	c := client.New(cfg, nil,
		session.Adapter{Kind: transport.KindWebSocket, New: func() transport.Transport {
			return wsx.New(cfg.Endpoint, cfg.SendQueueSize)
		}},
		session.Adapter{Kind: transport.KindChannel, New: func() transport.Transport {
			return natsx.New(natsx.Config{
				Servers: natsServers,
				Key:     cfg.Key,
				Name:    cfg.Username,
				Prefix:  "roam." + cfg.WorldID,
			})
		}},
	)

	c.OnConnectionChanged(func(up bool) {
		logger.Infof("[roam] connection=%v", up)
	})
	c.OnConnectionError(func(reason string) {
		logger.Warnf("[roam] connection error: %s", reason)
	})
	c.OnChat(func(msg wire.ChatMessage) {
		logger.Infof("[roam] <%s> %s (%s)", msg.Username, msg.Message, msg.Type)
	})
	c.OnUserJoined(func(id string) { logger.Infof("[roam] joined id=%s", id) })
	c.OnUserLeft(func(id string) { logger.Infof("[roam] left id=%s", id) })
	c.OnProximityEnter(func(id string) { logger.Infof("[roam] near id=%s", id) })
	c.OnProximityLeave(func(id string) { logger.Infof("[roam] apart id=%s", id) })
	c.OnZoneEnter(func(z string) { logger.Infof("[roam] entered zone=%s", z) })
	c.OnZoneExit(func(z string) { logger.Infof("[roam] exited zone=%s", z) })

	c.AddZone(proximity.Zone{Name: "fountain", Center: wire.Vector3{X: 10, Z: 10}, Radius: 5})

	if !c.Init(preferred) {
		st := c.ConnectionState()
		logger.Errorf("[roam] could not connect: %s", st.Err)
		return
	}
	defer c.Dispose()

	if len(avatarMeta) > 0 {
		custom := make(map[string]any, len(avatarMeta))
		for k, v := range avatarMeta {
			custom[k] = v
		}
		c.UpdateCustomization(custom)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// wander around the spawn point so nearby clients see movement
	t := time.NewTicker(time.Duration(wanderMS) * time.Millisecond)
	defer t.Stop()

	pos := wire.Vector3{}
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[roam] exit")
			return
		case <-t.C:
			if !wander {
				continue
			}
			pos.X += rand.Float64()*2 - 1
			pos.Z += rand.Float64()*2 - 1
			c.UpdatePosition(pos, wire.Vector3{Y: rand.Float64() * 360})
			if target, ok := c.ProximityTarget(); ok && rand.Intn(10) == 0 {
				if _, err := c.SendProximityMessage("hey, you're close by!"); err != nil {
					logger.Warnf("[roam] proximity send failed target=%s err=%v", target, err)
				}
			}
		}
	}
}
