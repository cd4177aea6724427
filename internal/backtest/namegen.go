package backtest

import (
	"fmt"
	"math/rand"
)

// 随机生成人类可读的 run 名，导出目录用它命名。
var (
	nameAdjectives = []string{
		"amber", "bold", "calm", "dusty", "eager", "fleet", "golden", "hardy",
		"iron", "jolly", "keen", "lucid", "mellow", "noble", "olive", "prime",
		"quiet", "rustic", "solid", "tidal", "vivid", "wild",
	}
	nameNouns = []string{
		"barley", "cotton", "copper", "crude", "harvest", "ingot", "lumber",
		"maize", "orchard", "prairie", "silo", "sorghum", "soybean", "sugar",
		"wheat", "zinc",
	}
)

func generateRunName() string {
	adj := nameAdjectives[rand.Intn(len(nameAdjectives))]
	noun := nameNouns[rand.Intn(len(nameNouns))]
	return fmt.Sprintf("%s-%s-%04d", adj, noun, rand.Intn(10000))
}
