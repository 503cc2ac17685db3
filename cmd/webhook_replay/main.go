package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// 对本地服务重复投递同一条供应商回调，验证写入收敛：
// 无论投递多少次，订单只分配一次、邮件只发一次
var (
	baseURL    = flag.String("base", "http://localhost:8080", "server base url")
	orderNo    = flag.String("order-no", "", "provider order number to replay")
	deliveries = flag.Int("n", 50, "number of duplicate deliveries")
)

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 200
	t.MaxIdleConnsPerHost = 200
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	flag.Parse()
	if *orderNo == "" {
		fmt.Println("usage: webhook_replay -order-no <orderNo> [-n 50]")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"orderNo":    *orderNo,
		"notifyType": "ORDER_STATUS",
	})

	fmt.Printf("开始重投：向 %s 投递 %d 次同一条回调 (orderNo: %s)...\n", *baseURL, *deliveries, *orderNo)

	var wg sync.WaitGroup
	okCount := 0
	failCount := 0
	var mu sync.Mutex

	start := time.Now()

	for i := 0; i < *deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := deliver(payload)
			mu.Lock()
			if ok {
				okCount++
			} else {
				failCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	duration := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("重投结束，耗时: %v\n", duration)
	fmt.Printf("总投递数: %d\n", *deliveries)
	fmt.Printf("回 200: %d (预期: %d，webhook 永远回 200)\n", okCount, *deliveries)
	fmt.Printf("异常: %d\n", failCount)
	fmt.Println("--------------------------------------------------")
	fmt.Println("检查项：订单 email_sent 只置位一次，分配字段与单次投递一致")
}

func deliver(payload []byte) bool {
	resp, err := httpClient.Post(*baseURL+"/api/webhook/esim", "application/json", bytes.NewReader(payload))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
