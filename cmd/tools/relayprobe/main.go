// relayprobe 手动验证语音中继链路：连接中继端点，把一个PCM16音频文件
// 按实时节奏推流，打印返回的转写增量，并把返回的音频写入文件。
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	relaymodel "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/model/relay"
)

// 下行音频为 24kHz PCM16 单声道：每毫秒48字节。
const bytesPerMillisecond = 24000 * 2 / 1000

type appendEvent struct {
	Type  relaymodel.EventType `json:"type"`
	Audio string               `json:"audio"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := flag.String("addr", "ws://localhost:8080/api/relay/voice", "中继端点地址")
	audioPath := flag.String("audio", "", "输入音频文件路径 (raw PCM16, 24kHz, mono)")
	outputPath := flag.String("out", "reply.pcm", "返回音频的输出文件路径")
	chunkMS := flag.Int("chunk", 100, "每帧音频时长 (毫秒)")
	timeout := flag.Duration("timeout", 45*time.Second, "整体超时时间")

	flag.Parse()

	if *audioPath == "" {
		flag.Usage()
		log.Fatal("请通过 -audio 指定输入音频文件路径")
	}

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("创建输出文件失败: %v", err)
	}
	defer out.Close()

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(*addr, nil)
	if err != nil {
		log.Fatalf("连接中继失败: %v", err)
	}
	defer conn.Close()

	log.Printf("已连接 %s", *addr)

	done := make(chan struct{})
	go readLoop(conn, out, done)

	chunkBytes := *chunkMS * bytesPerMillisecond
	ticker := time.NewTicker(time.Duration(*chunkMS) * time.Millisecond)
	defer ticker.Stop()

	sent := 0
	for offset := 0; offset < len(audio); offset += chunkBytes {
		end := offset + chunkBytes
		if end > len(audio) {
			end = len(audio)
		}

		frame, err := json.Marshal(appendEvent{
			Type:  relaymodel.EventInputAudioAppend,
			Audio: base64.StdEncoding.EncodeToString(audio[offset:end]),
		})
		if err != nil {
			log.Fatalf("构造音频帧失败: %v", err)
		}

		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Fatalf("发送音频帧失败: %v", err)
		}
		sent++

		select {
		case <-done:
			log.Fatal("连接在推流过程中被关闭")
		case <-ticker.C:
		}
	}

	log.Printf("推流完成，共 %d 帧，等待回复...", sent)

	select {
	case <-done:
	case <-time.After(*timeout):
		log.Printf("等待超时 (%s)", *timeout)
	}
}

// readLoop 打印转写增量并把音频增量落盘，直至连接关闭。
func readLoop(conn *websocket.Conn, out *os.File, done chan<- struct{}) {
	defer close(done)

	audioBytes := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("连接关闭: %v", err)
			log.Printf("共写入音频 %d 字节", audioBytes)
			return
		}

		env := relaymodel.ParseEnvelope(raw)
		switch env.Type {
		case relaymodel.EventResponseTranscriptDelta:
			fmt.Print(env.Delta)
		case relaymodel.EventResponseTranscriptDone:
			fmt.Println()
			log.Printf("转写完成: %s", env.Transcript)
		case relaymodel.EventResponseAudioDelta:
			pcm, decodeErr := base64.StdEncoding.DecodeString(env.Delta)
			if decodeErr != nil {
				log.Printf("音频增量解码失败: %v", decodeErr)
				continue
			}
			if _, writeErr := out.Write(pcm); writeErr != nil {
				log.Printf("写入输出文件失败: %v", writeErr)
				return
			}
			audioBytes += len(pcm)
		case relaymodel.EventResponseAudioDone:
			log.Printf("音频回复完成，共 %d 字节", audioBytes)
		case relaymodel.EventSpeechStarted:
			log.Println("VAD: 检测到讲话开始")
		case relaymodel.EventSpeechStopped:
			log.Println("VAD: 检测到讲话结束")
		case relaymodel.EventError:
			if env.Error != nil {
				log.Printf("中继错误: %s", env.Error.Message)
			}
		}
	}
}
