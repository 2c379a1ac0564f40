package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"support-agent/internal/agent/intent"
	"support-agent/internal/agent/planner"
	"support-agent/internal/kb"
	"support-agent/pkg/config"
)

const version = "support-agent cli 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行子命令并返回退出码
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "config":
		return runConfig(rest, stdout, stderr)
	case "kb":
		if len(rest) > 0 && rest[0] == "search" {
			return runKBSearch(rest[1:], stdout, stderr)
		}
		fmt.Fprintln(stderr, "Usage: support-agent kb search [-dir DIR] [-k N] <query>")
		return 1
	case "classify":
		return runClassify(rest, stdout, stderr)
	case "plan":
		return runPlan(rest, stdout, stderr)
	case "health":
		return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) { return c.health() })
	case "customers":
		if len(rest) > 0 && rest[0] == "add" {
			if len(rest) < 3 {
				fmt.Fprintln(stderr, "Usage: support-agent customers add <name> <email> [company]")
				return 1
			}
			company := ""
			if len(rest) > 3 {
				company = strings.Join(rest[3:], " ")
			}
			return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) {
				return c.createCustomer(rest[1], rest[2], company)
			})
		}
		return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) { return c.listCustomers() })
	case "send":
		if len(rest) < 2 {
			fmt.Fprintln(stderr, "Usage: support-agent send <customer_id> <text>")
			return 1
		}
		return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) {
			return c.sendMessage(rest[0], strings.Join(rest[1:], " "))
		})
	case "approve":
		if len(rest) < 2 {
			fmt.Fprintln(stderr, "Usage: support-agent approve <customer_id> <draft_text>")
			return 1
		}
		return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) {
			return c.approve(rest[0], strings.Join(rest[1:], " "))
		})
	case "run":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: support-agent run <customer_id>")
			return 1
		}
		return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) { return c.latestRun(rest[0]) })
	case "tickets":
		status := ""
		if len(rest) > 0 {
			status = rest[0]
		}
		return runRemote(stdout, stderr, func(c *apiClient) (interface{}, error) { return c.listTickets(status) })
	default:
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: support-agent <command> [args]")
	fmt.Fprintln(w, "  version                       - 显示版本")
	fmt.Fprintln(w, "  config [path]                 - 显示配置概要")
	fmt.Fprintln(w, "  kb search [-dir DIR] <query>  - 离线检索知识库")
	fmt.Fprintln(w, "  classify <text>               - 关键词规则意图分类")
	fmt.Fprintln(w, "  plan [-customer ID] <text>    - 输出消息对应的执行计划")
	fmt.Fprintln(w, "  health                        - 查询 API 健康状态")
	fmt.Fprintln(w, "  customers                     - 列出客户")
	fmt.Fprintln(w, "  customers add <name> <email> [company] - 创建客户")
	fmt.Fprintln(w, "  send <customer_id> <text>     - 以客户身份发送消息")
	fmt.Fprintln(w, "  approve <customer_id> <draft> - 审批草稿并执行待写动作")
	fmt.Fprintln(w, "  run <customer_id>             - 查看客户最近一次 Agent Run")
	fmt.Fprintln(w, "  tickets [open|closed|all]     - 列出工单")
	fmt.Fprintln(w, "环境变量: SUPPORT_AGENT_API_URL（默认 http://localhost:8080）, SUPPORT_AGENT_TOKEN（JWT）")
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	path := "configs/api.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "api.port=%d\n", cfg.API.Port)
	fmt.Fprintf(stdout, "api.host=%s\n", cfg.API.Host)
	fmt.Fprintf(stdout, "kb.dir=%s\n", cfg.KB.Dir)
	fmt.Fprintf(stdout, "storage.helpdesk.type=%s\n", cfg.Storage.Helpdesk.Type)
	fmt.Fprintf(stdout, "agent.require_approval=%t\n", cfg.Agent.ApprovalRequired())
	fmt.Fprintf(stdout, "model.defaults.llm=%s\n", cfg.Model.Defaults.LLM)
	return 0
}

func runKBSearch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kb search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", kb.DefaultDir, "知识库目录")
	topK := fs.Int("k", kb.DefaultTopK, "返回条数")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(stderr, "Usage: support-agent kb search [-dir DIR] [-k N] <query>")
		return 1
	}
	knowledge := kb.New(*dir)
	if err := knowledge.Load(); err != nil {
		fmt.Fprintf(stderr, "加载知识库失败: %v\n", err)
		return 1
	}
	results := knowledge.Search(query, *topK)
	if len(results) == 0 {
		fmt.Fprintln(stdout, "[]")
		return 0
	}
	fmt.Fprintln(stdout, prettyJSON(results))
	return 0
}

func runClassify(args []string, stdout, stderr io.Writer) int {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(stderr, "Usage: support-agent classify <text>")
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(intent.ClassifyKeywords(text)))
	return 0
}

func runPlan(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	customer := fs.String("customer", "1", "客户 ID")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(stderr, "Usage: support-agent plan [-customer ID] <text>")
		return 1
	}
	customerID, err := strconv.ParseInt(*customer, 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "无效的客户 ID: %s\n", *customer)
		return 1
	}
	cls := intent.ClassifyKeywords(text)
	out := map[string]interface{}{
		"intent": cls.Intent,
		"plan":   planner.Build(cls.Intent, text, customerID),
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}

func runRemote(stdout, stderr io.Writer, fn func(c *apiClient) (interface{}, error)) int {
	out, err := fn(newAPIClient(apiBaseURL(), os.Getenv("SUPPORT_AGENT_TOKEN")))
	if err != nil {
		fmt.Fprintf(stderr, "请求失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}
