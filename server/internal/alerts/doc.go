// Package alerts implements the rule evaluation engine and webhook delivery
// for docship alerting. Rules are evaluated against every received run
// report; notifications go to Teams, Slack or generic HTTP targets.
package alerts
